package extract

import (
	"bytes"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain decodes text and markdown files. A leading byte order mark is
// dropped and invalid UTF-8 becomes U+FFFD.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return string(content), nil
	}
	return string(bytes.ToValidUTF8(content, []byte("\uFFFD"))), nil
}
