package query

import (
	"fmt"
	"strings"
)

const derivedAlias = "src"

// PatientIDQuery reduces q to the distinct values of its first column.
func PatientIDQuery(q string) (string, error) {
	q = clean(q)
	cols := Columns(q)
	if len(cols) == 0 {
		return "", constructionErrorf(q, "no projected columns")
	}
	key := quoteIdent(cols[0])
	return fmt.Sprintf("SELECT %s FROM (%s) AS %s GROUP BY %s", key, q, derivedAlias, key), nil
}

// MinQuery reduces a (key, value) query to the smallest value per key.
func MinQuery(q string) (string, error) {
	return extremumQuery("MIN", q)
}

// MaxQuery reduces a (key, value) query to the largest value per key.
func MaxQuery(q string) (string, error) {
	return extremumQuery("MAX", q)
}

func extremumQuery(fn, q string) (string, error) {
	q = clean(q)
	pair, err := Pair(q)
	if err != nil {
		return "", err
	}
	key, value := quoteIdent(pair.Key), quoteIdent(pair.Value)
	return fmt.Sprintf("SELECT %s, %s(%s) AS %s FROM (%s) AS %s GROUP BY %s",
		key, fn, value, value, q, derivedAlias, key), nil
}

// UnionQuery concatenates the row sets of qs with UNION ALL. Rows present in
// more than one source are kept once per source.
func UnionQuery(qs ...string) (string, error) {
	if len(qs) == 0 {
		return "", constructionErrorf("", "union of zero queries")
	}
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		q = clean(q)
		if q == "" {
			return "", constructionErrorf("", "union contains an empty query")
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " UNION ALL "), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func clean(q string) string {
	q = strings.TrimSpace(q)
	return strings.TrimSpace(strings.TrimRight(q, ";"))
}
