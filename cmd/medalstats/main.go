// Command medalstats prints leaderboards and personal statistics in the
// terminal.
//
//	medalstats [global flags] rankings [-category key] [-limit n]
//	medalstats [global flags] rates [-limit n]
//	medalstats [global flags] me <save-data-url>
//	medalstats [global flags] ping
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/language"

	"github.com/pefman/medal-dashboard/internal/api"
	"github.com/pefman/medal-dashboard/internal/config"
	"github.com/pefman/medal-dashboard/internal/format"
	"github.com/pefman/medal-dashboard/internal/ranking"
	"github.com/pefman/medal-dashboard/internal/record"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	client *api.Client
	lang   language.Tag
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

var (
	gold   = color.New(color.FgYellow, color.Bold)
	silver = color.New(color.FgWhite, color.Bold)
	bronze = color.New(color.FgRed)
	title  = color.New(color.FgCyan, color.Bold)
	muted  = color.New(color.FgHiBlack)
	failed = color.New(color.FgRed, color.Bold)
	good   = color.New(color.FgGreen, color.Bold)
)

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Parse("medalstats", args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	lang, err := language.Parse(cfg.Lang)
	if err != nil {
		lang = format.DefaultLang
	}
	c := &cli{
		client: api.NewClient(cfg.APIBase, cfg.HealthBase, cfg.DataHosts...),
		lang:   lang,
		out:    stdout,
		errOut: stderr,
		now:    time.Now,
	}
	if len(cfg.Args) == 0 {
		fmt.Fprintln(stderr, "usage: medalstats [flags] rankings|rates|me|ping")
		return 2
	}
	ctx := context.Background()
	sub, rest := cfg.Args[0], cfg.Args[1:]
	switch sub {
	case "rankings":
		return c.rankings(ctx, rest)
	case "rates":
		return c.rates(ctx, rest)
	case "me":
		return c.me(ctx, rest)
	case "ping":
		return c.ping(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", sub)
		return 2
	}
}

func tierColor(t ranking.Tier) *color.Color {
	switch t {
	case ranking.Gold:
		return gold
	case ranking.Silver:
		return silver
	case ranking.Bronze:
		return bronze
	default:
		return nil
	}
}

func (c *cli) rankings(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("rankings", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	category := fs.String("category", "", "Only show this category")
	limit := fs.Int("limit", 10, "Rows shown per category (0 = all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	var only *ranking.Category
	if *category != "" {
		cat, found := ranking.LookupCategory(*category)
		if !found {
			fmt.Fprintf(c.errOut, "unknown category %q\n", *category)
			return 2
		}
		only = &cat
	}

	snap, err := c.client.FetchRankings(ctx)
	if err != nil {
		failed.Fprintf(c.errOut, "ランキングを取得できませんでした: %v\n", err)
		return 1
	}
	r := ranking.Renderer{Lang: c.lang, Now: c.now}
	fmt.Fprintf(c.out, "総メダル数: %s\n", r.TotalMedals(snap))

	tables := r.RenderAll(snap)
	if only != nil {
		tables = []ranking.Table{r.Render(snap.List(only.Key), *only)}
	}
	for _, t := range tables {
		fmt.Fprintln(c.out)
		title.Fprintln(c.out, t.Category.Title)
		if len(t.Rows) == 0 {
			muted.Fprintln(c.out, "  データがありません")
			continue
		}
		rows := t.Rows
		if *limit > 0 && len(rows) > *limit {
			rows = rows[:*limit]
		}
		for _, row := range rows {
			line := fmt.Sprintf("  %-3s %-6s %-20s %s", row.Tier.Badge(), row.RankLabel, row.UserID, row.Value)
			if col := tierColor(row.Tier); col != nil {
				col.Fprint(c.out, line)
			} else {
				fmt.Fprint(c.out, line)
			}
			if row.RecordedAt != "" {
				muted.Fprintf(c.out, "  %s", row.RecordedAt)
			}
			fmt.Fprintln(c.out)
		}
		if hidden := len(t.Rows) - len(rows); hidden > 0 {
			muted.Fprintf(c.out, "  … 他 %d 件\n", hidden)
		}
	}
	return 0
}

func (c *cli) rates(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("rates", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	limit := fs.Int("limit", 20, "Rows shown (0 = all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rates, err := c.client.FetchAchievementRates(ctx)
	if err != nil {
		failed.Fprintf(c.errOut, "実績取得率を取得できませんでした: %v\n", err)
		return 1
	}
	rows := rates.Sorted()
	if *limit > 0 && len(rows) > *limit {
		rows = rows[:*limit]
	}
	title.Fprintf(c.out, "実績取得率 (総ユーザー数 %s)\n", format.Int(c.lang, int64(rates.TotalUsers)))
	for _, row := range rows {
		fmt.Fprintf(c.out, "  %-32s %8s  %s\n", row.ID, format.Percent(row.Rate.Rate), format.Int(c.lang, int64(row.Count)))
	}
	return 0
}

func (c *cli) me(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.errOut, "usage: medalstats me <save-data-url>")
		return 2
	}
	rec, err := c.client.FetchPersonalRecord(ctx, args[0])
	if err != nil {
		failed.Fprintln(c.errOut, api.Message(err))
		muted.Fprintf(c.errOut, "(%s: %v)\n", api.Category(err), err)
		return 1
	}
	r := record.NewRenderer(c.lang)
	r.Now = c.now
	entries := r.Render(rec)
	width := 0
	for _, e := range entries {
		width = max(width, len(e.Name))
	}
	for _, e := range entries {
		title.Fprintf(c.out, "%-*s  ", width, e.Name)
		switch {
		case e.Placeholder:
			muted.Fprintln(c.out, e.Text)
		case e.Collapsible && e.Items == nil:
			fmt.Fprintln(c.out)
			for _, line := range strings.Split(e.Text, "\n") {
				fmt.Fprintf(c.out, "    %s\n", line)
			}
		default:
			fmt.Fprint(c.out, e.Text)
			if e.Hint != "" {
				muted.Fprintf(c.out, "  (%s)", e.Hint)
			}
			fmt.Fprintln(c.out)
		}
	}
	return 0
}

func (c *cli) ping(ctx context.Context) int {
	if c.client.Ping(ctx) {
		good.Fprintln(c.out, "online")
		return 0
	}
	failed.Fprintln(c.out, "offline")
	return 1
}
