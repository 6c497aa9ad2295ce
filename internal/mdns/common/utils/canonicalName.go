// Package utils holds small presentation-layer helpers shared by the domain
// and wire packages: name canonicalization and label normalization.
package utils

import (
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalDNSName returns a DNS name in canonical form:
//   - Lowercased
//   - Trimmed of surrounding whitespace
//   - No trailing dot, since every name in this package is compared and
//     hashed without one.
//
// This is the basis for domain.Name's comparison key (Name.LowerKey): a
// Name's labels are already split and length-validated, so only the
// lowercase/trim/detrail step applies by the time it reaches here.
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// mdnsIDNAProfile mirrors the relaxed validation mDNS needs: presentation
// names may legally contain raw UTF-8 (RFC 6763 §4.1.3), so labels are
// transformed to their ASCII-compatible wire form without rejecting
// characters a strict web-hostname profile would refuse.
var mdnsIDNAProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
)

// NormalizeLabel converts a single presentation-form label (which may
// contain non-ASCII UTF-8) into the byte sequence that belongs on the wire.
// ASCII labels pass through unchanged. Labels that idna cannot represent
// fall back to their raw UTF-8 bytes so the caller can still attempt to
// encode them and get a length error rather than a silent data change.
func NormalizeLabel(label string) string {
	if isASCII(label) {
		return label
	}
	normalized, err := mdnsIDNAProfile.ToASCII(label)
	if err != nil {
		return label
	}
	return normalized
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
