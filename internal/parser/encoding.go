package parser

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeToUTF8 returns the content as UTF-8. Bank portals still export
// Windows-1252/Latin-1 files, so non-UTF-8 input is transcoded rather than
// rejected. Content that survives neither interpretation is unreadable.
func DecodeToUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("content is neither UTF-8 nor Windows-1252: %w", err)
	}
	return decoded, nil
}
