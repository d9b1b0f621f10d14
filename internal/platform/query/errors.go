package query

import "fmt"

// ConstructionError reports a definition that cannot be composed into
// executable query text. It is returned before anything is executed.
type ConstructionError struct {
	Query  string
	Reason string
}

func (e *ConstructionError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("construction error: %s", e.Reason)
	}
	return fmt.Sprintf("construction error: %s: %q", e.Reason, e.Query)
}

func constructionErrorf(query, format string, args ...interface{}) error {
	return &ConstructionError{Query: query, Reason: fmt.Sprintf(format, args...)}
}
