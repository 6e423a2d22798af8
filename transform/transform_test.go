package transform

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"data.csv", nil},
		{"data.csv.gz", []string{"gz"}},
		{"data.gz", []string{"gz"}},
		{"DATA.CSV.GZ", []string{"gz"}},
		{"data.csv.gz.zst", []string{"gz", "zst"}},
		{"data.unknownext", nil},
		{"/tmp/exports/data.txt.zlib", []string{"zlib"}},
		{"noextension", nil},
	}

	for _, tt := range tests {
		got := Resolve(tt.name)
		if len(got) != len(tt.want) {
			t.Errorf("Resolve(%q) = %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Resolve(%q) = %v, want %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestReader_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("line one\nline two\n"))
	zw.Close()

	r, err := Reader(&buf, []string{"gz"})
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "line one\nline two\n" {
		t.Errorf("decoded %q", data)
	}
}

func TestReader_EmptyChain(t *testing.T) {
	r, err := Reader(strings.NewReader("raw"), nil)
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	defer r.Close()

	data, _ := io.ReadAll(r)
	if string(data) != "raw" {
		t.Errorf("got %q, want raw passthrough", data)
	}
}

func TestReader_UnknownTag(t *testing.T) {
	_, err := Reader(strings.NewReader(""), []string{"nosuch"})
	if !errors.Is(err, ErrUnknownTransform) {
		t.Fatalf("err = %v, want ErrUnknownTransform", err)
	}
}

// xorReader stands in for a decryption codec registered by a caller.
type xorReader struct {
	r   io.Reader
	key byte
}

func (x *xorReader) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	for i := 0; i < n; i++ {
		p[i] ^= x.key
	}
	return n, err
}

func (x *xorReader) Close() error { return nil }

func xorBytes(data []byte, key byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key
	}
	return out
}

func TestReader_ChainedOutermostLast(t *testing.T) {
	Register("enc", func(r io.Reader) (io.ReadCloser, error) {
		return &xorReader{r: r, key: 0x5a}, nil
	})

	// Compressed then encrypted: the stored bytes are
	// xor(gzip(payload)), so the chain [gz, enc] must decrypt first
	// and decompress second.
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("payload"))
	zw.Close()
	stored := xorBytes(gz.Bytes(), 0x5a)

	chain := Resolve("data.txt.gz.enc")
	if len(chain) != 2 || chain[0] != "gz" || chain[1] != "enc" {
		t.Fatalf("Resolve chain = %v, want [gz enc]", chain)
	}

	r, err := Reader(bytes.NewReader(stored), chain)
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("decoded %q, want payload", data)
	}
}

func TestReader_Zlib(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte("zlib data"))
	zw.Close()

	r, err := Reader(&buf, Resolve("dump.zlib"))
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	defer r.Close()

	data, _ := io.ReadAll(r)
	if string(data) != "zlib data" {
		t.Errorf("decoded %q", data)
	}
}
