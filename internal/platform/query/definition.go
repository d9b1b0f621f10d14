package query

import "fmt"

// Kind tags the variant held by a Definition.
type Kind int

const (
	KindTemplated Kind = iota + 1
	KindPatientID
	KindMin
	KindMax
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindTemplated:
		return "templated"
	case KindPatientID:
		return "patient_id"
	case KindMin:
		return "min"
	case KindMax:
		return "max"
	case KindUnion:
		return "union"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Definition is a composable query description. Templated definitions carry
// raw text; the other kinds wrap their Parts.
//
// A templated definition may also name Parts: each part is composed first and
// spliced into Raw through the ${<part name>} placeholder.
type Definition struct {
	Kind  Kind
	Name  string
	Raw   string
	Parts []Definition
}

// Templated returns a definition over raw query text.
func Templated(name, raw string, parts ...Definition) Definition {
	return Definition{Kind: KindTemplated, Name: name, Raw: raw, Parts: parts}
}

// PatientIDOf reduces d to its distinct keys.
func PatientIDOf(d Definition) Definition {
	return Definition{Kind: KindPatientID, Name: d.Name, Parts: []Definition{d}}
}

// MinOf reduces the two-column definition d to its per-key minimum.
func MinOf(d Definition) Definition {
	return Definition{Kind: KindMin, Name: d.Name, Parts: []Definition{d}}
}

// MaxOf reduces the two-column definition d to its per-key maximum.
func MaxOf(d Definition) Definition {
	return Definition{Kind: KindMax, Name: d.Name, Parts: []Definition{d}}
}

// UnionOf concatenates the row sets of parts.
func UnionOf(name string, parts ...Definition) Definition {
	return Definition{Kind: KindUnion, Name: name, Parts: parts}
}

// Compose renders d into executable query text, resolving reference
// placeholders from refs. It performs no I/O.
func Compose(d Definition, refs PlaceholderMap) (string, error) {
	switch d.Kind {
	case KindTemplated:
		values := refs
		if len(d.Parts) > 0 {
			nested := make(PlaceholderMap, len(d.Parts))
			for _, p := range d.Parts {
				if p.Name == "" {
					return "", constructionErrorf(d.Raw, "templated part of kind %s has no name", p.Kind)
				}
				q, err := Compose(p, refs)
				if err != nil {
					return "", err
				}
				nested[p.Name] = q
			}
			values = refs.Merge(nested)
		}
		return Substitute(d.Raw, values), nil
	case KindPatientID, KindMin, KindMax:
		if len(d.Parts) != 1 {
			return "", constructionErrorf("", "%s definition %q needs exactly one part, has %d", d.Kind, d.Name, len(d.Parts))
		}
		inner, err := Compose(d.Parts[0], refs)
		if err != nil {
			return "", err
		}
		switch d.Kind {
		case KindPatientID:
			return PatientIDQuery(inner)
		case KindMin:
			return MinQuery(inner)
		default:
			return MaxQuery(inner)
		}
	case KindUnion:
		qs := make([]string, 0, len(d.Parts))
		for _, p := range d.Parts {
			q, err := Compose(p, refs)
			if err != nil {
				return "", err
			}
			qs = append(qs, q)
		}
		return UnionQuery(qs...)
	default:
		return "", constructionErrorf("", "unknown definition kind %s", d.Kind)
	}
}
