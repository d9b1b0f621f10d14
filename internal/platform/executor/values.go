package executor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	DateTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// AsInt64 converts a key column value to an integer identifier. NULL and
// non-numeric values report false.
func AsInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case int:
		return int64(val), true
	case int16:
		return int64(val), true
	case float64:
		if val != float64(int64(val)) {
			return 0, false
		}
		return int64(val), true
	case []byte:
		return AsInt64(string(val))
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// AsTime converts a date column value. A NULL value reports ok=false with no
// error; text that is not a recognised date is an error.
func AsTime(v interface{}) (t time.Time, ok bool, err error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return val, true, nil
	case []byte:
		return AsTime(string(val))
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if parsed, perr := time.Parse(layout, s); perr == nil {
				return parsed, true, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("unrecognised date value %q", val)
	default:
		return time.Time{}, false, fmt.Errorf("unsupported date value of type %T", v)
	}
}
