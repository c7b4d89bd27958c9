// Package charset bridges the GBK world of one legacy forum and the UTF-8
// world of everything else. The forum's server, links and query parameters
// are all GBK; any parameter built outside this package gets garbled or
// rejected upstream.
package charset

import (
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// Decode interprets raw response bytes as GBK. Arbitrary byte sequences
// almost always decode without error (they may just render as mojibake), so
// the UTF-8 fallback is a rarely-taken safety net.
func Decode(raw []byte) string {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// Encode converts a UTF-8 string to GBK bytes. Characters with no GBK
// mapping keep their UTF-8 bytes rather than failing the whole string.
func Encode(s string) []byte {
	encoded, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return encoded
}

// EncodeFormValue percent-encodes a form value in GBK, the way the legacy
// forum's own pages do. ASCII alphanumerics pass through unescaped; every
// other byte of the GBK encoding becomes %XX.
func EncodeFormValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isUnreservedASCII(r) {
			b.WriteRune(r)
			continue
		}
		for _, octet := range Encode(string(r)) {
			b.WriteByte('%')
			b.WriteByte(upperhex[octet>>4])
			b.WriteByte(upperhex[octet&0x0f])
		}
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isUnreservedASCII(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	return false
}
