package ingest

import (
	"path/filepath"
	"strings"
	"unicode"
)

// VendorFromFilename derives a vendor name from a file name: "acme_corp.pdf" becomes
// "Acme Corp". Used when the document does not name its vendor.
func VendorFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
