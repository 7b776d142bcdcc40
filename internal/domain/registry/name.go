package registry

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalName returns the form an identity name is stored and compared in:
// Unicode NFC with surrounding whitespace removed. "José" typed with a
// combining accent and with a precomposed é map to the same identity.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
