// Package phone canonicalizes free-form phone numbers. Contact ids are the
// normalized form, so every caller that derives an id must go through
// Normalize.
package phone

import "strings"

// Normalize keeps only the ASCII decimal digits of s, in order.
// An empty result means s cannot identify a contact.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Valid reports whether s normalizes to a usable id.
func Valid(s string) bool {
	return Normalize(s) != ""
}

// Format renders a number for display: 03XX-XXXXXXX for 11-digit local
// numbers, (XXX) XXX-XXXX for 10 digits, otherwise s unchanged.
func Format(s string) string {
	d := Normalize(s)
	switch {
	case len(d) == 11 && d[0] == '0':
		return d[:4] + "-" + d[4:]
	case len(d) == 10:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	}
	return s
}

// Matches reports whether number contains the digits of query. Queries with
// no digits never match.
func Matches(number, query string) bool {
	q := Normalize(query)
	if q == "" {
		return false
	}
	return strings.Contains(Normalize(number), q)
}
