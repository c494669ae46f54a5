// Package ranking holds the leaderboard snapshot returned by the statistics
// endpoint and renders ranked tables from it.
package ranking

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category describes one leaderboard of the statistics snapshot.
type Category struct {
	Key   string
	Title string
	Unit  string // appended to formatted values, empty for none
}

// Categories lists the leaderboards in display order.
var Categories = []Category{
	{Key: "achievements_count", Title: "実績解除数", Unit: "個"},
	{Key: "golden_palball_get", Title: "ゴールデンパルボール獲得数", Unit: "個"},
	{Key: "jacksp_startmax", Title: "SPジャックポット開始最大", Unit: "枚"},
	{Key: "jack_totalmax_v2", Title: "ジャックポット最大獲得", Unit: "枚"},
	{Key: "ult_totalmax_v2", Title: "アルティメット最大獲得", Unit: "枚"},
	{Key: "ult_combomax", Title: "アルティメット最大コンボ", Unit: "コンボ"},
	{Key: "max_chain_rainbow", Title: "レインボー最大チェイン", Unit: "チェイン"},
	{Key: "cpm_max", Title: "最大CPM"},
	{Key: "sp_use", Title: "SP使用回数", Unit: "回"},
}

// LookupCategory finds a category by key. Unknown keys get a bare category
// titled by the key itself.
func LookupCategory(key string) (Category, bool) {
	for _, c := range Categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{Key: key, Title: key}, false
}

// Timestamp accepts the time layouts the data server has been seen to emit.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("ranking: unrecognised timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Entry is one leaderboard row as delivered by the API.
type Entry struct {
	UserID    string      `json:"user_id"`
	Value     json.Number `json:"value"`
	CreatedAt Timestamp   `json:"created_at"`
}

// List is ordered best first; position is rank.
type List []Entry

// Snapshot is one statistics response.
type Snapshot struct {
	TotalMedals int64
	Lists       map[string]List
	FetchedAt   time.Time
}

// List returns the leaderboard for key, nil when absent.
func (s *Snapshot) List(key string) List {
	if s == nil {
		return nil
	}
	return s.Lists[key]
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Snapshot{Lists: map[string]List{}}
	if v, ok := raw["total_medals"]; ok && string(v) != "null" {
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("ranking: total_medals: %w", err)
		}
		total, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return fmt.Errorf("ranking: total_medals: %w", err)
			}
			total = int64(f)
		}
		s.TotalMedals = total
	}
	for _, c := range Categories {
		v, ok := raw[c.Key]
		if !ok || string(v) == "null" {
			continue
		}
		var list List
		if err := json.Unmarshal(v, &list); err != nil {
			return fmt.Errorf("ranking: %s: %w", c.Key, err)
		}
		s.Lists[c.Key] = list
	}
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := map[string]any{"total_medals": s.TotalMedals}
	for k, v := range s.Lists {
		out[k] = v
	}
	return json.Marshal(out)
}

// AchievementRates is the acquisition-rate summary.
type AchievementRates struct {
	TotalUsers int             `json:"total_users"`
	Rates      map[string]Rate `json:"achievement_rates"`
}

type Rate struct {
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}

// RateRow is one achievement in display order.
type RateRow struct {
	ID string
	Rate
}

// Sorted returns achievements by rate descending, then by ID.
func (a *AchievementRates) Sorted() []RateRow {
	if a == nil {
		return nil
	}
	out := make([]RateRow, 0, len(a.Rates))
	for id, r := range a.Rates {
		out = append(out, RateRow{ID: id, Rate: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate.Rate != out[j].Rate.Rate {
			return out[i].Rate.Rate > out[j].Rate.Rate
		}
		return out[i].ID < out[j].ID
	})
	return out
}
