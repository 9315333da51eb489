// Package strings provides string utility functions for variable naming.
package strings

import (
	"strings"
	"unicode"
)

func ToLowerCamel(s string) string {
	i := 0
	for i < len(s) && unicode.IsUpper(rune(s[i])) {
		i++
	}

	return strings.ToLower(s[:i]) + s[i:]
}

// goReservedKeywords contains Go reserved keywords that cannot be used as identifiers.
var goReservedKeywords = map[string]bool{
	"break": true, "default": true, "func": true, "interface": true, "select": true,
	"case": true, "defer": true, "go": true, "map": true, "struct": true,
	"chan": true, "else": true, "goto": true, "package": true, "switch": true,
	"const": true, "fallthrough": true, "if": true, "range": true, "type": true,
	"continue": true, "for": true, "import": true, "return": true, "var": true,
}

// SafeIdent returns s suffixed so it is usable as a Go identifier.
func SafeIdent(s string) string {
	if s == "" {
		return "val"
	}
	if goReservedKeywords[s] {
		return s + "Value"
	}

	return s
}
