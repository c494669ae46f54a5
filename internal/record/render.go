package record

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/pefman/medal-dashboard/internal/format"
)

// Placeholder is shown for absent or null fields.
const Placeholder = "N/A"

// ListSeparator joins text list items.
const ListSeparator = ", "

// DefaultAggregates are the per-type counter maps in save data that get a
// collapsible structured dump.
var DefaultAggregates = []string{"dc_medal_get", "dc_ball_get", "dc_ball_chain"}

// Entry is one rendered field.
type Entry struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Text        string   `json:"text"`
	Items       []string `json:"items,omitempty"`
	Collapsible bool     `json:"collapsible,omitempty"`
	Placeholder bool     `json:"placeholder,omitempty"`
	// Hint is secondary text, e.g. a relative time for timestamp fields.
	Hint string `json:"hint,omitempty"`
}

// Renderer turns records into display entries. The zero Renderer is usable.
type Renderer struct {
	Lang       language.Tag
	Aggregates []string
	// Expected fields are listed with the placeholder when missing.
	Expected []string
	// Timestamps hold Unix seconds and Durations hold second counts.
	Timestamps []string
	Durations  []string
	Now        func() time.Time
}

// NewRenderer returns a Renderer with the save-data defaults.
func NewRenderer(lang language.Tag) Renderer {
	return Renderer{
		Lang:       lang,
		Aggregates: DefaultAggregates,
		Timestamps: []string{"firstboot", "lastsave"},
		Durations:  []string{"playtime"},
	}
}

// Render lists every field of rec in natural order, then any expected field
// that is missing.
func (r Renderer) Render(rec Record) []Entry {
	keys := rec.Keys()
	out := make([]Entry, 0, len(keys)+len(r.Expected))
	for _, k := range keys {
		out = append(out, r.entry(k, rec.Get(k)))
	}
	for _, k := range r.Expected {
		if !rec.Has(k) {
			out = append(out, r.entry(k, Value{}))
		}
	}
	return out
}

// Field renders a single field whether or not it is present.
func (r Renderer) Field(rec Record, name string) Entry {
	return r.entry(name, rec.Get(name))
}

func (r Renderer) entry(name string, v Value) Entry {
	e := Entry{Name: name, Kind: v.Kind().String()}
	switch v.Kind() {
	case Number:
		e.Text = format.Number(r.lang(), v.Number())
		e.Hint = r.hint(name, v.Number().String())
	case Text:
		e.Text = v.Text()
		e.Hint = r.hint(name, v.Text())
	case TextList:
		e.Items = v.List()
		e.Text = strings.Join(v.List(), ListSeparator)
		e.Collapsible = true
	case Nested:
		if slices.Contains(r.Aggregates, name) {
			var buf bytes.Buffer
			if err := json.Indent(&buf, v.Raw(), "", "  "); err == nil {
				e.Text = buf.String()
			} else {
				e.Text = string(v.Raw())
			}
			e.Collapsible = true
		} else {
			e.Text = string(v.Raw())
		}
	default:
		e.Text = Placeholder
		e.Placeholder = true
	}
	return e
}

func (r Renderer) hint(name, raw string) string {
	switch {
	case slices.Contains(r.Timestamps, name):
		if t, ok := format.UnixTime(raw); ok {
			return format.Since(t, r.now())
		}
	case slices.Contains(r.Durations, name):
		return format.Seconds(json.Number(raw))
	}
	return ""
}

func (r Renderer) lang() language.Tag {
	if r.Lang == language.Und {
		return format.DefaultLang
	}
	return r.Lang
}

func (r Renderer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
