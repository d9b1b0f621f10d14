package cohort

import (
	"encoding/json"
	"sort"

	"github.com/ehr/cohort/internal/platform/executor"
)

type PatientID int64

// Cohort is an unordered set of patients. The zero value is an empty cohort.
type Cohort struct {
	members map[PatientID]struct{}
}

func New(ids ...PatientID) Cohort {
	c := Cohort{members: make(map[PatientID]struct{}, len(ids))}
	for _, id := range ids {
		c.members[id] = struct{}{}
	}
	return c
}

// FromRows builds a cohort from the key column of rows. Null and
// non-numeric keys are dropped; duplicates collapse.
func FromRows(rows []executor.Row) Cohort {
	c := Cohort{members: make(map[PatientID]struct{}, len(rows))}
	for _, r := range rows {
		if id, ok := executor.AsInt64(r.Key); ok {
			c.members[PatientID(id)] = struct{}{}
		}
	}
	return c
}

func (c Cohort) Len() int {
	return len(c.members)
}

func (c Cohort) Has(id PatientID) bool {
	_, ok := c.members[id]
	return ok
}

// Members returns the patient ids in ascending order.
func (c Cohort) Members() []PatientID {
	ids := make([]PatientID, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c Cohort) Intersect(other Cohort) Cohort {
	small, large := c, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	out := New()
	for id := range small.members {
		if large.Has(id) {
			out.members[id] = struct{}{}
		}
	}
	return out
}

func (c Cohort) Union(other Cohort) Cohort {
	out := Cohort{members: make(map[PatientID]struct{}, c.Len()+other.Len())}
	for id := range c.members {
		out.members[id] = struct{}{}
	}
	for id := range other.members {
		out.members[id] = struct{}{}
	}
	return out
}

// Minus returns the members of c that are not in other.
func (c Cohort) Minus(other Cohort) Cohort {
	out := New()
	for id := range c.members {
		if !other.Has(id) {
			out.members[id] = struct{}{}
		}
	}
	return out
}

// SubsetOf reports whether every member of c is in other.
func (c Cohort) SubsetOf(other Cohort) bool {
	for id := range c.members {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

func (c Cohort) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Members())
}

func (c *Cohort) UnmarshalJSON(data []byte) error {
	var ids []PatientID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*c = New(ids...)
	return nil
}
