package query

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
)

const (
	placeholderStart = "${"
	placeholderEnd   = "}"
)

// PlaceholderMap binds placeholder names to reference values.
type PlaceholderMap map[string]interface{}

// Merge returns a new map holding m overlaid with other.
func (m PlaceholderMap) Merge(other PlaceholderMap) PlaceholderMap {
	out := make(PlaceholderMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Int64 returns the named value as an integer identifier.
func (m PlaceholderMap) Int64(name string) (int64, bool) {
	v, ok := m[name]
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// Int64s returns the named value as a list of integer identifiers. Scalars
// and comma-separated strings are accepted.
func (m PlaceholderMap) Int64s(name string) ([]int64, bool) {
	v, ok := m[name]
	if !ok {
		return nil, false
	}
	var items []interface{}
	switch list := v.(type) {
	case []interface{}:
		items = list
	case []int64:
		return append([]int64(nil), list...), true
	case []int:
		for _, i := range list {
			items = append(items, i)
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			items = append(items, strings.TrimSpace(s))
		}
	default:
		items = []interface{}{v}
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok := toInt64(item)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// Substitute replaces every ${name} in raw whose name is bound in values
// with the value's textual form. Unknown placeholders are left as written.
func Substitute(raw string, values PlaceholderMap) string {
	head, tail := splitUnterminated(raw)
	if !strings.Contains(head, placeholderStart) {
		return raw
	}
	return fasttemplate.ExecuteFuncString(head, placeholderStart, placeholderEnd, func(w io.Writer, tag string) (int, error) {
		v, ok := values[strings.TrimSpace(tag)]
		if !ok {
			return io.WriteString(w, placeholderStart+tag+placeholderEnd)
		}
		return io.WriteString(w, Format(v))
	}) + tail
}

// Placeholders lists the distinct placeholder names in raw, in order of
// first appearance.
func Placeholders(raw string) []string {
	head, _ := splitUnterminated(raw)
	if !strings.Contains(head, placeholderStart) {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	fasttemplate.ExecuteFuncString(head, placeholderStart, placeholderEnd, func(w io.Writer, tag string) (int, error) {
		name := strings.TrimSpace(tag)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return 0, nil
	})
	return names
}

// splitUnterminated cuts raw before a trailing "${" that has no closing
// brace, which fasttemplate would reject.
func splitUnterminated(raw string) (string, string) {
	i := strings.LastIndex(raw, placeholderStart)
	if i < 0 || strings.Contains(raw[i:], placeholderEnd) {
		return raw, ""
	}
	return raw[:i], raw[i:]
}

// Format renders a reference value the way it is spliced into query text.
// Lists are comma-joined for use inside IN (...).
func Format(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format("2006-01-02")
	case []int:
		parts := make([]string, len(val))
		for i, x := range val {
			parts[i] = strconv.Itoa(x)
		}
		return strings.Join(parts, ",")
	case []int64:
		parts := make([]string, len(val))
		for i, x := range val {
			parts[i] = strconv.FormatInt(x, 10)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case []interface{}:
		parts := make([]string, len(val))
		for i, x := range val {
			parts[i] = Format(x)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case float64:
		if val != float64(int64(val)) {
			return 0, false
		}
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
