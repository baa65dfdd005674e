package udp

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder turns datagram bytes into text in a configured charset.
type Decoder struct {
	name   string
	enc    encoding.Encoding
	strict bool
}

// NewDecoder looks up name in the WHATWG encoding index.
func NewDecoder(name string) (*Decoder, error) {
	if name == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	canonical, _ := htmlindex.Name(enc)
	return &Decoder{name: canonical, enc: enc, strict: canonical == "utf-8"}, nil
}

// Name returns the canonical encoding name.
func (d *Decoder) Name() string { return d.name }

// Decode converts b to a string. A leading BOM selects UTF-8 or UTF-16.
// UTF-8 input must be valid; replacement characters are never produced.
func (d *Decoder) Decode(b []byte) (string, error) {
	if d.strict && !hasUTF16BOM(b) && !utf8.Valid(b) {
		return "", ErrDecode
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(d.enc.NewDecoder()), b)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return string(out), nil
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE))
}
