package domain

import "strings"

// ShellQuote single-quotes s for a POSIX shell unless it only contains
// characters that never need quoting.
func ShellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, unsafeRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./:@%+=,", r):
		return false
	}
	return true
}
