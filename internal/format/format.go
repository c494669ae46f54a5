// Package format holds the number and time formatting shared by the record
// and ranking renderers.
package format

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLang is used when no display language is configured.
var DefaultLang = language.Japanese

// Number formats a JSON number with thousands separators for lang.
// Integral values print without a fraction; others keep up to two digits.
func Number(lang language.Tag, n json.Number) string {
	p := message.NewPrinter(lang)
	if i, err := n.Int64(); err == nil {
		return p.Sprintf("%d", i)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return p.Sprintf("%d", int64(f))
	}
	return p.Sprint(number.Decimal(f, number.MaxFractionDigits(2)))
}

// Int is Number for plain integers.
func Int(lang language.Tag, n int64) string {
	return message.NewPrinter(lang).Sprintf("%d", n)
}

// Percent renders a 0..1 ratio as "12.3%".
func Percent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}

// Since renders t relative to now ("3 days ago").
func Since(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Seconds renders a second count as a compact duration ("12h34m5s").
func Seconds(n json.Number) string {
	s, err := n.Int64()
	if err != nil || s < 0 {
		return ""
	}
	return (time.Duration(s) * time.Second).String()
}

// UnixTime parses a Unix timestamp held as a JSON number or numeric string.
func UnixTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}
