// Package scan holds the byte-level scanning helpers shared by the
// expression evaluator and the command parser.
package scan

import "strconv"

func IsSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

func IsDigit(c byte) bool { return c >= '0' && c <= '9' }

func IsAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func IsHexDigit(c byte) bool {
	return IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func Lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func Upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// Skip advances i past whitespace and returns the new index.
func Skip(s string, i int) int {
	for i < len(s) && IsSpace(s[i]) {
		i++
	}
	return i
}

// Match skips whitespace and consumes c if it is next. The returned index
// points past c on success, at the first non-space byte otherwise.
func Match(s string, i int, c byte) (int, bool) {
	i = Skip(s, i)
	if i < len(s) && s[i] == c {
		return i + 1, true
	}
	return i, false
}

// Word reads a run of alphabetic bytes starting at i.
func Word(s string, i int) (word string, next int) {
	j := i
	for j < len(s) && IsAlpha(s[j]) {
		j++
	}
	return s[i:j], j
}

// Ident reads an identifier: a letter followed by letters, digits, or '_'.
func Ident(s string, i int) (ident string, next int) {
	if i >= len(s) || !IsAlpha(s[i]) {
		return "", i
	}
	j := i + 1
	for j < len(s) && (IsAlpha(s[j]) || IsDigit(s[j]) || s[j] == '_') {
		j++
	}
	return s[i:j], j
}

// IsInteger reports whether s is a decimal integer, optionally signed.
func IsInteger(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		if len(s) == 1 {
			return false
		}
		start = 1
	}
	for i := start; i < len(s); i++ {
		if !IsDigit(s[i]) {
			return false
		}
	}
	return true
}

// IsBinaryLiteral reports whether s is '#' or 'b' followed by binary digits.
func IsBinaryLiteral(s string) bool {
	if len(s) < 2 || (s[0] != '#' && Lower(s[0]) != 'b') {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}

// IsHexLiteral reports whether s is 'x' or 'X' followed by hex digits.
func IsHexLiteral(s string) bool {
	if len(s) < 2 || Lower(s[0]) != 'x' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !IsHexDigit(s[i]) {
			return false
		}
	}
	return true
}

// IsLiteral reports whether s is any of the three literal forms.
func IsLiteral(s string) bool {
	return IsInteger(s) || IsBinaryLiteral(s) || IsHexLiteral(s)
}

// ParseLiteral converts a decimal, binary (#1010 / b1010), or hex (xFF)
// literal. Unrecognized input yields 0, matching the tolerant literal
// handling of the command grammar.
func ParseLiteral(s string) int {
	switch {
	case IsInteger(s):
		n, _ := strconv.Atoi(s)
		return n
	case IsBinaryLiteral(s):
		n, _ := strconv.ParseInt(s[1:], 2, 64)
		return int(n)
	case IsHexLiteral(s):
		n, _ := strconv.ParseInt(s[1:], 16, 64)
		return int(n)
	}
	return 0
}

// SplitTop splits s on sep occurring at paren depth zero. Separator bytes
// inside parentheses do not split.
func SplitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
