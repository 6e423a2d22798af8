// Package splitter turns a decoded byte stream into a lazy sequence
// of text records. It is single-pass and single-consumer: the
// splitter owns the read cursor of the underlying stream and must not
// be shared between goroutines.
package splitter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const DefaultBufferSize = 64 * 1024

// ErrDelimiterNotFound is returned when neither the configured
// delimiter nor a detectable line terminator fits inside the lookahead
// buffer. This is a configuration problem (buffer too small for the
// input's line length), never silent truncation.
var ErrDelimiterNotFound = errors.New("delimiter not found within buffer")

type Options struct {
	// Delimiter overrides auto-detection when non-empty.
	Delimiter string
	// BufferSize bounds the lookahead. The first record plus its
	// delimiter must fit. Defaults to DefaultBufferSize.
	BufferSize int
	// Encoding names the canonical text encoding records are
	// normalized into. Empty means UTF-8; "none" disables
	// normalization.
	Encoding string
	// StripNonPrintable removes non-printable characters from each
	// record before it is handed downstream. Tabs survive.
	StripNonPrintable bool
}

type Splitter struct {
	r       *bufio.Reader
	bufSize int
	delim   []byte
	strip   bool
	toUTF8  bool
	done    bool
}

// New wraps r. When opts.Encoding names a non-UTF-8 charset the
// stream is decoded into UTF-8 before splitting.
func New(r io.Reader, opts Options) (*Splitter, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	toUTF8 := false
	switch normalizeEncodingName(opts.Encoding) {
	case "none":
	case "utf-8":
		toUTF8 = true
	default:
		decoded, err := decodeReader(r, opts.Encoding)
		if err != nil {
			return nil, fmt.Errorf("unsupported text encoding %q: %w", opts.Encoding, err)
		}
		r = decoded
	}

	s := &Splitter{
		r:       bufio.NewReaderSize(r, size),
		bufSize: size,
		strip:   opts.StripNonPrintable,
		toUTF8:  toUTF8,
	}
	if opts.Delimiter != "" {
		s.delim = []byte(opts.Delimiter)
	}
	return s, nil
}

// Delimiter reports the active delimiter, empty until detection has
// run on the first read.
func (s *Splitter) Delimiter() string {
	return string(s.delim)
}

// Next returns the next record stripped of its trailing delimiter.
// io.EOF terminates the sequence.
func (s *Splitter) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	buf, peekErr := s.r.Peek(s.bufSize)
	if peekErr != nil && peekErr != io.EOF && peekErr != bufio.ErrBufferFull {
		return "", peekErr
	}
	if len(buf) == 0 {
		s.done = true
		return "", io.EOF
	}

	if s.delim == nil {
		delim, err := detectDelimiter(buf, peekErr == io.EOF)
		if err != nil {
			return "", err
		}
		s.delim = delim
	}

	var record []byte
	if s.delim != nil {
		if idx := bytes.Index(buf, s.delim); idx >= 0 {
			record = buf[:idx]
			s.r.Discard(idx + len(s.delim))
			return s.normalize(record), nil
		}
	}

	// No delimiter in the buffered window. At EOF the remainder is
	// the final record; otherwise the line cannot fit.
	if peekErr != io.EOF {
		return "", fmt.Errorf("%w (buffer %d bytes)", ErrDelimiterNotFound, s.bufSize)
	}

	record = buf
	s.r.Discard(len(buf))
	s.done = true
	return s.normalize(record), nil
}

func (s *Splitter) normalize(record []byte) string {
	line := string(record)
	if s.toUTF8 {
		line = strings.ToValidUTF8(line, "")
	}
	if s.strip {
		line = stripNonPrintable(line)
	}
	return line
}

// detectDelimiter scans the first buffered window for the earliest
// one- or two-character line terminator and fixes that choice for the
// remainder of the stream. A delimiterless stream that ends inside
// the window is a single-record stream, not an error. A \r on the
// last byte of a non-EOF window is ambiguous (its \n may be in the
// next window), so the choice cannot be fixed: the first line plus
// its full terminator must fit.
func detectDelimiter(buf []byte, atEOF bool) ([]byte, error) {
	for i, b := range buf {
		switch b {
		case '\n':
			return []byte("\n"), nil
		case '\r':
			if i+1 < len(buf) {
				if buf[i+1] == '\n' {
					return []byte("\r\n"), nil
				}
				return []byte("\r"), nil
			}
			if atEOF {
				return []byte("\r"), nil
			}
			return nil, fmt.Errorf("%w: line terminator split across %d-byte buffer", ErrDelimiterNotFound, len(buf))
		}
	}
	if atEOF {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: no line terminator in first %d bytes", ErrDelimiterNotFound, len(buf))
}

func stripNonPrintable(line string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, line)
}
