package query

import (
	"regexp"
	"strings"
)

var selectKeyword = regexp.MustCompile(`(?i)\bselect\b`)

// ColumnPair is the (key, value) projection of a two-column query.
type ColumnPair struct {
	Key   string
	Value string
}

// Columns returns the effective column names projected by the first SELECT
// of q, up to its FROM. A FROM inside parentheses or quotes, as in
// "EXTRACT(YEAR FROM d) AS yr", does not end the projection. Each projected
// expression contributes its last whitespace-separated token with any
// qualifier prefix removed, so "p.patient_id" yields "patient_id" and
// "MAX(o.x) AS last_x" yields "last_x". An expression without an alias
// yields its raw last token.
func Columns(q string) []string {
	loc := selectKeyword.FindStringIndex(q)
	if loc == nil {
		return nil
	}
	rest := q[loc[1]:]
	end := topLevelKeyword(rest, "from")
	if end < 0 {
		return nil
	}

	var cols []string
	for _, expr := range splitTopLevel(rest[:end]) {
		fields := strings.Fields(expr)
		if len(fields) == 0 {
			continue
		}
		cols = append(cols, columnName(fields[len(fields)-1]))
	}
	return cols
}

// Pair returns the key and value columns of q, failing unless q projects
// exactly two columns.
func Pair(q string) (ColumnPair, error) {
	cols := Columns(q)
	if len(cols) != 2 {
		return ColumnPair{}, constructionErrorf(q, "expected 2 projected columns, found %d", len(cols))
	}
	return ColumnPair{Key: cols[0], Value: cols[1]}, nil
}

func columnName(token string) string {
	if i := strings.LastIndex(token, "."); i >= 0 {
		token = token[i+1:]
	}
	return unquote(token)
}

func unquote(ident string) string {
	if len(ident) >= 2 {
		first, last := ident[0], ident[len(ident)-1]
		if (first == '"' && last == '"') || (first == '`' && last == '`') {
			return ident[1 : len(ident)-1]
		}
	}
	return ident
}

// splitTopLevel splits s on commas that are outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var parts []string
	start := 0
	walkTopLevel(s, func(i int) bool {
		if s[i] == ',' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
		return true
	})
	return append(parts, s[start:])
}

// topLevelKeyword returns the index of the first occurrence of kw in s that
// stands alone as a word outside parentheses and quotes, or -1.
func topLevelKeyword(s, kw string) int {
	at := -1
	walkTopLevel(s, func(i int) bool {
		if isKeywordAt(s, i, kw) {
			at = i
			return false
		}
		return true
	})
	return at
}

// walkTopLevel calls visit with the index of every byte of s outside quotes
// and parentheses, stopping when visit returns false.
func walkTopLevel(s string, visit func(i int) bool) {
	var (
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			if !visit(i) {
				return
			}
		}
	}
}

func isKeywordAt(s string, i int, kw string) bool {
	end := i + len(kw)
	if end > len(s) || !strings.EqualFold(s[i:end], kw) {
		return false
	}
	if i > 0 && isIdentByte(s[i-1]) {
		return false
	}
	return end == len(s) || !isIdentByte(s[end])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
