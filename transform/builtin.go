package transform

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
)

func init() {
	Register("gz", gzipFactory)
	Register("gzip", gzipFactory)
	Register("zlib", zlibFactory)
	Register("flate", flateFactory)
	Register("s2", s2Factory)
	Register("sz", snappyFactory)
	Register("snappy", snappyFactory)
	Register("zst", zstdFactory)
	Register("zstd", zstdFactory)
}

func gzipFactory(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func zlibFactory(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}

func flateFactory(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

func s2Factory(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

func snappyFactory(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}
