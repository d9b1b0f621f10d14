package executor

import (
	"testing"
	"time"
)

func TestAsInt64(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{int32(5), 5, true},
		{5, 5, true},
		{float64(5), 5, true},
		{5.5, 0, false},
		{"12", 12, true},
		{[]byte("12"), 12, true},
		{"abc", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := AsInt64(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("AsInt64(%#v) = %d, %v; expected %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAsTime(t *testing.T) {
	want := time.Date(2019, 4, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []interface{}{
		want,
		"2019-04-05",
		"2019-04-05 00:00:00",
		"2019-04-05T00:00:00Z",
		[]byte("2019-04-05 00:00:00"),
	} {
		got, ok, err := AsTime(in)
		if err != nil || !ok {
			t.Errorf("AsTime(%#v): unexpected ok=%v err=%v", in, ok, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("AsTime(%#v) = %s, expected %s", in, got, want)
		}
	}
}

func TestAsTime_Null(t *testing.T) {
	_, ok, err := AsTime(nil)
	if ok || err != nil {
		t.Errorf("expected absent value without error, got ok=%v err=%v", ok, err)
	}
}

func TestAsTime_Invalid(t *testing.T) {
	if _, _, err := AsTime("yesterday"); err == nil {
		t.Error("expected error for unparseable text")
	}
	if _, _, err := AsTime(42); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestParams_Merge(t *testing.T) {
	p := Params{"a": 1}
	m := p.Merge(Params{"b": 2})
	if len(m) != 2 || len(p) != 1 {
		t.Errorf("unexpected merge: %v / %v", m, p)
	}
}
