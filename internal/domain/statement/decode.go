package statement

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ReadError is returned when statement bytes cannot be read or turned into
// text. It is the only error the reader produces.
type ReadError struct {
	Op  string // "read" or "decode"
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("statement %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read consumes r fully, decodes it to text and parses it.
func Read(r io.Reader) (*Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ReadError{Op: "read", Err: err}
	}
	text, err := Decode(data)
	if err != nil {
		return nil, &ReadError{Op: "decode", Err: err}
	}
	return Parse(text), nil
}

// Decode turns raw statement bytes into a string. Valid UTF-8 is used as is,
// since many banks label UTF-8 output as CHARSET:1252. Anything else is
// decoded with the charset named in the OFX header, defaulting to
// Windows-1252.
func Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	enc := headerCharset(data)
	if enc == nil {
		enc = charmap.Windows1252
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// headerCharset looks at the "KEY:VALUE" lines that precede the first tag.
func headerCharset(data []byte) encoding.Encoding {
	header := data
	if i := bytes.IndexByte(data, '<'); i >= 0 {
		header = data[:i]
	}
	for _, line := range strings.Split(string(header), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || !strings.EqualFold(key, "CHARSET") {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(value)) {
		case "1252", "WINDOWS-1252", "CP1252":
			return charmap.Windows1252
		case "ISO-8859-1", "8859-1", "LATIN1":
			return charmap.ISO8859_1
		case "ISO-8859-15", "8859-15":
			return charmap.ISO8859_15
		}
	}
	return nil
}
