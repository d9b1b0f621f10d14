package period

import (
	"strconv"
	"strings"

	"hermannm.dev/enumnames"
)

type Quarter uint8

const (
	Q1 Quarter = iota + 1
	Q2
	Q3
	Q4
)

var quarterNames = enumnames.NewMap(map[Quarter]string{
	Q1: "Q1",
	Q2: "Q2",
	Q3: "Q3",
	Q4: "Q4",
})

func (q Quarter) IsValid() bool {
	return quarterNames.ContainsEnumValue(q)
}

func (q Quarter) String() string {
	return quarterNames.GetNameOrFallback(q, "INVALID_QUARTER")
}

func (q Quarter) MarshalJSON() ([]byte, error) {
	return quarterNames.MarshalToNameJSON(q)
}

func (q *Quarter) UnmarshalJSON(bytes []byte) error {
	return quarterNames.UnmarshalFromNameJSON(bytes, q)
}

// ordinal is the zero-based position of the quarter within the year.
func (q Quarter) ordinal() int {
	return int(q) - 1
}

// Month is a month relative to its quarter. MonthNone selects the whole
// quarter.
type Month uint8

const (
	MonthNone Month = iota
	M1
	M2
	M3
)

var monthNames = enumnames.NewMap(map[Month]string{
	M1: "M1",
	M2: "M2",
	M3: "M3",
})

func (m Month) IsValid() bool {
	return m == MonthNone || monthNames.ContainsEnumValue(m)
}

func (m Month) String() string {
	if m == MonthNone {
		return ""
	}
	return monthNames.GetNameOrFallback(m, "INVALID_MONTH")
}

func (m Month) MarshalJSON() ([]byte, error) {
	if m == MonthNone {
		return []byte("null"), nil
	}
	return monthNames.MarshalToNameJSON(m)
}

func (m *Month) UnmarshalJSON(bytes []byte) error {
	if string(bytes) == "null" {
		*m = MonthNone
		return nil
	}
	return monthNames.UnmarshalFromNameJSON(bytes, m)
}

// ParseQuarter accepts "Q1".."Q4" or the bare ordinal "1".."4".
func ParseQuarter(s string) (Quarter, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(Q1) || n > int(Q4) {
			return 0, invalidEnum("quarter", s)
		}
		return Quarter(n), nil
	}
	var q Quarter
	if err := q.UnmarshalJSON([]byte(strconv.Quote(s))); err != nil {
		return 0, invalidEnum("quarter", s)
	}
	return q, nil
}

// ParseMonth accepts "M1".."M3", the bare ordinal "1".."3", or an empty
// string for MonthNone.
func ParseMonth(s string) (Month, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return MonthNone, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(M1) || n > int(M3) {
			return 0, invalidEnum("month", s)
		}
		return Month(n), nil
	}
	var m Month
	if err := m.UnmarshalJSON([]byte(strconv.Quote(s))); err != nil {
		return 0, invalidEnum("month", s)
	}
	return m, nil
}
