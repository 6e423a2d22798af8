//go:build !cgo
// +build !cgo

package transform

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func zstdFactory(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
