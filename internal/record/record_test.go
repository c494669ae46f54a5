package record

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestParseKeepsKeyOrder(t *testing.T) {
	rec, err := Parse([]byte(`{"zeta":1,"alpha":"x","mid":[ "a" ],"dc_ball_get":{"b":1,"a":2},"gone":null}`))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"zeta", "alpha", "mid", "dc_ball_get", "gone"}
	if got := rec.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	kinds := map[string]Kind{"zeta": Number, "alpha": Text, "mid": TextList, "dc_ball_get": Nested, "gone": Absent}
	for k, kind := range kinds {
		if got := rec.Get(k).Kind(); got != kind {
			t.Errorf("%s kind = %v, want %v", k, got, kind)
		}
	}
	if !rec.Has("gone") || rec.Has("missing") {
		t.Error("Has should see null fields but not missing ones")
	}
	if got := string(rec.Get("dc_ball_get").Raw()); got != `{"b":1,"a":2}` {
		t.Errorf("nested raw = %s", got)
	}
}

func TestParseArraysWithNonStringsStayNested(t *testing.T) {
	rec, err := Parse([]byte(`{"with_null":["a", null],"mixed":[1,"a"],"labels":["x","y"],"empty":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		key  string
		kind Kind
		raw  string
	}{
		{"with_null", Nested, `["a",null]`},
		{"mixed", Nested, `[1,"a"]`},
		{"labels", TextList, ""},
		{"empty", TextList, ""},
	}
	for _, tt := range tests {
		v := rec.Get(tt.key)
		if v.Kind() != tt.kind {
			t.Errorf("%s kind = %v, want %v", tt.key, v.Kind(), tt.kind)
		}
		if tt.raw != "" && string(v.Raw()) != tt.raw {
			t.Errorf("%s raw = %s, want %s", tt.key, v.Raw(), tt.raw)
		}
	}
	if got := rec.Get("labels").List(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("labels = %v", got)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	for _, in := range []string{`[1]`, `"x"`, `42`} {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrNotObject) {
			t.Errorf("Parse(%s) err = %v, want ErrNotObject", in, err)
		}
	}
	if _, err := Parse([]byte(`{"a":`)); err == nil {
		t.Error("expected error for truncated object")
	}
}

func TestRenderSaveData(t *testing.T) {
	rec, err := Parse([]byte(`{"medal_get":1500000,"l_achieve":["a","b","c"],"version":2}`))
	if err != nil {
		t.Fatal(err)
	}
	entries := NewRenderer(language.Japanese).Render(rec)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if e := entries[0]; e.Name != "medal_get" || e.Text != "1,500,000" {
		t.Errorf("medal_get entry = %+v", e)
	}
	if e := entries[1]; e.Name != "l_achieve" || e.Text != "a, b, c" || !e.Collapsible || len(e.Items) != 3 {
		t.Errorf("l_achieve entry = %+v", e)
	}
	if e := entries[2]; e.Name != "version" || e.Text != "2" {
		t.Errorf("version entry = %+v", e)
	}
}

func TestRenderAbsentField(t *testing.T) {
	rec, _ := Parse([]byte(`{"medal_get":1,"ult_get":null}`))
	r := NewRenderer(language.English)

	e := r.Field(rec, "jack_get")
	if e.Text != Placeholder || !e.Placeholder {
		t.Errorf("missing field = %+v", e)
	}
	if e := r.Field(rec, "ult_get"); e.Text != Placeholder {
		t.Errorf("null field = %+v", e)
	}

	r.Expected = []string{"medal_get", "jack_get"}
	entries := r.Render(rec)
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}
	if last := entries[2]; last.Name != "jack_get" || last.Text != Placeholder {
		t.Errorf("expected placeholder entry, got %+v", last)
	}
}

func TestRenderNested(t *testing.T) {
	rec, _ := Parse([]byte(`{"dc_medal_get":{"1":2},"other":{"x":[1,2]}}`))
	entries := NewRenderer(language.English).Render(rec)
	if !entries[0].Collapsible || entries[0].Text != "{\n  \"1\": 2\n}" {
		t.Errorf("aggregate = %+v", entries[0])
	}
	if entries[1].Collapsible || entries[1].Text != `{"x":[1,2]}` {
		t.Errorf("other nested = %+v", entries[1])
	}
}

func TestRenderHints(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := NewRenderer(language.English)
	r.Now = func() time.Time { return now }
	rec, _ := Parse([]byte(`{"lastsave":"1699913600","playtime":3725,"cpm_max":12.5}`))
	entries := r.Render(rec)
	if entries[0].Text != "1699913600" || entries[0].Hint != "1 day ago" {
		t.Errorf("lastsave = %+v", entries[0])
	}
	if entries[1].Text != "3,725" || entries[1].Hint != "1h2m5s" {
		t.Errorf("playtime = %+v", entries[1])
	}
	if entries[2].Text != "12.5" || entries[2].Hint != "" {
		t.Errorf("cpm_max = %+v", entries[2])
	}
}
