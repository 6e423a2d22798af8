// Package transform maps input names to ordered chains of stream
// decoders (decompress, decrypt) and builds the resulting read stack.
// Tags compose by suffix: "dump.csv.gz.enc" resolves to [gz, enc],
// outermost-last, so the reader decrypts first and decompresses
// second. New tags are registered with Register; decryption codecs
// are supplied by the caller that owns the keys.
package transform

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

// Factory wraps a raw stream in a decoding reader for one tag.
type Factory func(io.Reader) (io.ReadCloser, error)

var ErrUnknownTransform = errors.New("unknown transform tag")

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func Register(tag string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(tag)] = factory
}

func lookup(tag string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[strings.ToLower(tag)]
	return f, ok
}

// Registered reports whether a tag has a factory.
func Registered(tag string) bool {
	_, ok := lookup(tag)
	return ok
}

// Resolve infers the transform chain from a file name's extension
// segments. Recognized segments compose in order of appearance;
// unrecognized segments (".csv", ".txt") pass through. The returned
// chain is outermost-last.
func Resolve(name string) []string {
	base := filepath.Base(name)
	segments := strings.Split(base, ".")
	if len(segments) < 2 {
		return nil
	}

	var tags []string
	for _, seg := range segments[1:] {
		if Registered(seg) {
			tags = append(tags, strings.ToLower(seg))
		}
	}
	return tags
}

// Reader builds the decoding stack for an outermost-last chain. Tags
// are applied in reverse list order: the last tag wraps the raw
// stream, the first tag is read by the caller.
func Reader(r io.Reader, tags []string) (io.ReadCloser, error) {
	stack := &readStack{}
	current := r

	for i := len(tags) - 1; i >= 0; i-- {
		factory, ok := lookup(tags[i])
		if !ok {
			stack.Close()
			return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, tags[i])
		}
		wrapped, err := factory(current)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("transform %q: %w", tags[i], err)
		}
		stack.layers = append(stack.layers, wrapped)
		current = wrapped
	}

	stack.top = current
	return stack, nil
}

// readStack reads from the innermost decoder and closes every layer,
// newest first.
type readStack struct {
	top    io.Reader
	layers []io.ReadCloser
}

func (s *readStack) Read(p []byte) (int, error) {
	if s.top == nil {
		return 0, io.EOF
	}
	return s.top.Read(p)
}

func (s *readStack) Close() error {
	var firstErr error
	for i := len(s.layers) - 1; i >= 0; i-- {
		if err := s.layers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.layers = nil
	s.top = nil
	return firstErr
}
