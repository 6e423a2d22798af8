package splitter

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

func normalizeEncodingName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return "utf-8"
	case "utf8", "utf-8":
		return "utf-8"
	case "none", "binary":
		return "none"
	default:
		return name
	}
}

// decodeReader wraps r so it yields UTF-8 decoded from the named
// charset. Charset names follow the IANA registry ("ISO-8859-1",
// "windows-1252", "Shift_JIS").
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("no decoder for charset %q", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
