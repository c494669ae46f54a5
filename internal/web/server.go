// Package web serves the medal dashboard: HTML pages, a JSON status API and
// a websocket that pushes load state changes to open pages.
package web

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/text/language"

	"github.com/pefman/medal-dashboard/internal/loadstate"
	"github.com/pefman/medal-dashboard/internal/ranking"
	"github.com/pefman/medal-dashboard/internal/record"
	"github.com/pefman/medal-dashboard/internal/session"
)

// Fetcher is the remote data API as used by the dashboard.
type Fetcher interface {
	FetchRankings(ctx context.Context) (*ranking.Snapshot, error)
	FetchAchievementRates(ctx context.Context) (*ranking.AchievementRates, error)
	FetchPersonalRecord(ctx context.Context, rawURL string) (record.Record, error)
	Ping(ctx context.Context) bool
}

// Options tune a Server.
type Options struct {
	Lang         language.Tag
	PingInterval time.Duration
	// SessionIdle is how long an unseen session is kept.
	SessionIdle time.Duration
	Version     string
}

type Server struct {
	api  Fetcher
	opts Options

	rankings *loadstate.Op[*ranking.Snapshot]
	rates    *loadstate.Op[*ranking.AchievementRates]
	online   atomic.Bool
	checked  atomic.Bool

	sessions *session.Store
	hub      *hub
	pages    map[string]*template.Template

	records record.Renderer
	tables  ranking.Renderer
}

// New wires a Server around api. Nothing is fetched until Start.
func New(api Fetcher, opts Options) (*Server, error) {
	if opts.Lang == language.Und {
		opts.Lang = language.Japanese
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = 24 * time.Hour
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	s := &Server{
		api:      api,
		opts:     opts,
		rankings: &loadstate.Op[*ranking.Snapshot]{},
		rates:    &loadstate.Op[*ranking.AchievementRates]{},
		sessions: session.NewStore(),
		hub:      newHub(),
		pages:    pages,
		records:  record.NewRenderer(opts.Lang),
		tables:   ranking.Renderer{Lang: opts.Lang},
	}
	s.rankings.OnChange(func(st loadstate.State[*ranking.Snapshot]) {
		s.hub.broadcast(wsMsg{Type: "rankings", Data: opState(st)})
	})
	s.rates.OnChange(func(st loadstate.State[*ranking.AchievementRates]) {
		s.hub.broadcast(wsMsg{Type: "rates", Data: opState(st)})
	})
	s.sessions.OnCreate = func(sess *session.Session) {
		id := sess.ID
		sess.Personal.OnChange(func(st loadstate.State[record.Record]) {
			s.hub.sendSession(id, wsMsg{Type: "personal", Data: opState(st)})
		})
	}
	return s, nil
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(withLogging)

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/load", s.handleLoad).Methods(http.MethodPost)
	r.HandleFunc("/stats/dismiss", s.handleDismiss).Methods(http.MethodPost)
	r.HandleFunc("/rankings/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/privacy", s.handlePrivacy).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(withCORS)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such page")
	})
	return r
}

// Start fetches the rankings once, checks the server, and keeps pinging
// until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.RefreshRankings()
	s.refreshRates()
	s.ping(ctx)
	go s.loop(ctx)
}

func (s *Server) loop(ctx context.Context) {
	tick := time.NewTicker(s.opts.PingInterval)
	defer tick.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.ping(ctx)
		case <-prune.C:
			if n := s.sessions.Prune(s.opts.SessionIdle); n > 0 {
				log.Printf("session: pruned %d idle sessions", n)
			}
		}
	}
}

// RefreshRankings starts a ranking fetch. It returns false when one is
// already running. A failure keeps the previous snapshot.
func (s *Server) RefreshRankings() bool {
	_, ok := s.rankings.Start(false, func() (*ranking.Snapshot, error) {
		snap, err := s.api.FetchRankings(context.Background())
		if err != nil {
			log.Printf("rankings: fetch failed: %v", err)
		}
		return snap, err
	})
	return ok
}

func (s *Server) refreshRates() bool {
	_, ok := s.rates.Start(false, func() (*ranking.AchievementRates, error) {
		rates, err := s.api.FetchAchievementRates(context.Background())
		if err != nil {
			log.Printf("rates: fetch failed: %v", err)
		}
		return rates, err
	})
	return ok
}

func (s *Server) ping(ctx context.Context) {
	up := s.api.Ping(ctx)
	prev := s.online.Swap(up)
	first := !s.checked.Swap(true)
	if first || prev != up {
		log.Printf("ping: server online=%v", up)
		s.hub.broadcast(wsMsg{Type: "online", Data: up})
	}
}

// Online reports the result of the latest ping.
func (s *Server) Online() bool { return s.online.Load() }
