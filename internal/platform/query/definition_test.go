package query

import (
	"errors"
	"strings"
	"testing"
)

func TestCompose_Templated(t *testing.T) {
	d := Templated("vl", "SELECT o.patient_id, o.obs_datetime FROM obs o WHERE o.concept_id = ${viralLoad}")
	got, err := Compose(d, PlaceholderMap{"viralLoad": 856})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != vlQuery {
		t.Errorf("expected %q, got %q", vlQuery, got)
	}
}

func TestCompose_MaxOfUnion(t *testing.T) {
	d := MaxOf(UnionOf("last-contact",
		Templated("vl", "SELECT o.patient_id, o.obs_datetime FROM obs o WHERE o.concept_id = ${viralLoad}"),
		Templated("visit", "SELECT e.patient_id, e.encounter_datetime FROM encounter e WHERE e.encounter_type = ${adultVisit}"),
	))
	got, err := Compose(d, PlaceholderMap{"viralLoad": 856, "adultVisit": 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	union, _ := UnionQuery(vlQuery, visitQuery)
	want, _ := MaxQuery(union)
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestCompose_TemplatedWithParts(t *testing.T) {
	lastVL := MaxOf(Templated("vl", vlQuery))
	d := Templated("suppressed",
		"SELECT l.patient_id, l.obs_datetime FROM (${lastVL}) AS l WHERE l.obs_datetime <= @endDate",
		Definition{Kind: lastVL.Kind, Name: "lastVL", Parts: lastVL.Parts},
	)
	got, err := Compose(d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner, _ := MaxQuery(vlQuery)
	if !strings.Contains(got, "FROM ("+inner+") AS l") {
		t.Errorf("expected composed part to be spliced in, got:\n%s", got)
	}
	if cols := Columns(got); len(cols) != 2 || cols[0] != "patient_id" {
		t.Errorf("unexpected outer columns: %v", cols)
	}
}

func TestCompose_UnnamedPart(t *testing.T) {
	d := Templated("outer", "SELECT x.a FROM (${inner}) x", MaxOf(Templated("", vlQuery)))
	_, err := Compose(d, nil)
	var cerr *ConstructionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstructionError, got %v", err)
	}
}

func TestCompose_PropagatesConstructionError(t *testing.T) {
	d := PatientIDOf(MinOf(Templated("three", "SELECT a, b, c FROM t")))
	_, err := Compose(d, nil)
	var cerr *ConstructionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstructionError, got %v", err)
	}
	if cerr.Query != "SELECT a, b, c FROM t" {
		t.Errorf("expected offending query in error, got %q", cerr.Query)
	}
}

func TestCompose_InvalidShapes(t *testing.T) {
	cases := map[string]Definition{
		"unknown kind":  {Kind: Kind(42)},
		"zero value":    {},
		"max no parts":  {Kind: KindMax, Name: "m"},
		"min two parts": {Kind: KindMin, Name: "m", Parts: []Definition{Templated("a", vlQuery), Templated("b", vlQuery)}},
		"empty union":   UnionOf("u"),
	}
	for name, d := range cases {
		if _, err := Compose(d, nil); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestKind_String(t *testing.T) {
	if KindUnion.String() != "union" {
		t.Errorf("unexpected name: %s", KindUnion)
	}
	if Kind(0).String() != "kind(0)" {
		t.Errorf("unexpected name: %s", Kind(0))
	}
}
