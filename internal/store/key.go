package store

import "strings"

// ValidKey reports whether key is non-empty and made only of ASCII letters,
// digits, '_', '.' and '-'.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if !isKeyByte(key[i]) {
			return false
		}
	}
	return true
}

func isKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '.', c == '-':
		return true
	}
	return false
}

// ValidValue reports whether value fits on a single persisted line.
func ValidValue(value string) bool {
	return !strings.ContainsRune(value, '\n')
}
