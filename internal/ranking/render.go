package ranking

import (
	"fmt"
	"time"

	"golang.org/x/text/language"

	"github.com/pefman/medal-dashboard/internal/format"
)

// Tier is the visual class of a rank.
type Tier int

const (
	Standard Tier = iota
	Gold
	Silver
	Bronze
)

// TierFor gives ranks 1-3 their podium tier.
func TierFor(rank int) Tier {
	switch rank {
	case 1:
		return Gold
	case 2:
		return Silver
	case 3:
		return Bronze
	default:
		return Standard
	}
}

func (t Tier) String() string {
	switch t {
	case Gold:
		return "gold"
	case Silver:
		return "silver"
	case Bronze:
		return "bronze"
	default:
		return "standard"
	}
}

// Badge is the marker shown next to the rank.
func (t Tier) Badge() string {
	switch t {
	case Gold:
		return "🥇"
	case Silver:
		return "🥈"
	case Bronze:
		return "🥉"
	default:
		return ""
	}
}

// Row is one rendered leaderboard line.
type Row struct {
	Rank       int
	RankLabel  string
	Tier       Tier
	UserID     string
	Value      string
	RecordedAt string
}

func (r Row) String() string {
	return r.RankLabel + " / " + r.Value
}

// Table is a rendered leaderboard.
type Table struct {
	Category Category
	Rows     []Row
}

// Renderer formats leaderboards. The zero Renderer is usable.
type Renderer struct {
	Lang language.Tag
	Now  func() time.Time
}

// Render produces one row per entry, ranked by position in list.
func (r Renderer) Render(list List, c Category) Table {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	lang := r.Lang
	if lang == language.Und {
		lang = format.DefaultLang
	}
	rows := make([]Row, len(list))
	for i, e := range list {
		rank := i + 1
		rows[i] = Row{
			Rank:       rank,
			RankLabel:  fmt.Sprintf("%d位", rank),
			Tier:       TierFor(rank),
			UserID:     e.UserID,
			Value:      format.Number(lang, e.Value) + c.Unit,
			RecordedAt: format.Since(e.CreatedAt.Time, now),
		}
	}
	return Table{Category: c, Rows: rows}
}

// RenderAll renders every known category present in s, in display order.
func (r Renderer) RenderAll(s *Snapshot) []Table {
	if s == nil {
		return nil
	}
	out := make([]Table, 0, len(Categories))
	for _, c := range Categories {
		if list, ok := s.Lists[c.Key]; ok {
			out = append(out, r.Render(list, c))
		}
	}
	return out
}

// TotalMedals formats the snapshot's medal aggregate.
func (r Renderer) TotalMedals(s *Snapshot) string {
	if s == nil {
		return ""
	}
	lang := r.Lang
	if lang == language.Und {
		lang = format.DefaultLang
	}
	return format.Int(lang, s.TotalMedals)
}
