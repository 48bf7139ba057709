// Package sanitize produces filesystem- and header-safe filenames from
// untrusted media titles.
package sanitize

import (
	"strings"
	"unicode"
)

// some fs has a max 255 bytes length limit
const maxFilenameBytes = 255

// path separators keep a placeholder so "a/b" and "ab" stay distinct;
// other reserved and control characters are dropped outright
var separators = map[rune]bool{
	'/': true, '\\': true,
}

var reserved = map[rune]bool{
	':': true, '*': true, '?': true,
	'"': true, '<': true, '>': true, '|': true,
}

// Filename turns an arbitrary title into a safe "name.ext" attachment
// filename. ext is used without a leading dot.
func Filename(title, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "bin"
	}

	var b strings.Builder
	for _, r := range title {
		switch {
		case separators[r]:
			b.WriteRune('_')
		case reserved[r] || unicode.IsControl(r):
			// dropped
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	name := strings.Join(strings.Fields(b.String()), " ")
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "video"
	}

	maxNameLen := maxFilenameBytes - (1 + len(ext))
	name = truncateUTF8(name, maxNameLen)

	return name + "." + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
