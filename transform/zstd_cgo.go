//go:build cgo
// +build cgo

package transform

import (
	"io"

	"github.com/DataDog/zstd"
)

func zstdFactory(r io.Reader) (io.ReadCloser, error) {
	return zstd.NewReader(r), nil
}
