// Package decode turns raw statement bytes into text.
package decode

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names reported by Text
const (
	UTF8        = "utf-8"
	Windows1252 = "windows-1252"
	ISO88591    = "iso-8859-1"
	UTF8Lossy   = "utf-8-lossy"
)

type candidate struct {
	name string
	enc  encoding.Encoding // nil means UTF-8
}

// candidates are tried in order; the first clean decode wins
var candidates = []candidate{
	{UTF8, nil},
	{Windows1252, charmap.Windows1252},
	{ISO88591, charmap.ISO8859_1},
}

// Text decodes raw using the first encoding that accepts it and reports
// which one succeeded. It never fails: when no encoding decodes cleanly the
// input is read as UTF-8 with invalid bytes dropped.
func Text(raw []byte) (string, string) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	for _, c := range candidates {
		if s, ok := try(c, raw); ok {
			return s, c.name
		}
	}
	return strings.ToValidUTF8(string(raw), ""), UTF8Lossy
}

func try(c candidate, raw []byte) (string, bool) {
	if c.enc == nil {
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}

	out, err := c.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	// charmap decoders substitute U+FFFD for bytes outside the code page
	// instead of failing, so treat a replacement the input lacked as a miss.
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}
