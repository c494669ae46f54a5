package web

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pefman/medal-dashboard/internal/api"
	"github.com/pefman/medal-dashboard/internal/format"
	"github.com/pefman/medal-dashboard/internal/loadstate"
	"github.com/pefman/medal-dashboard/internal/ranking"
	"github.com/pefman/medal-dashboard/internal/record"
	"github.com/pefman/medal-dashboard/internal/session"
)

const sessionCookie = "mdsid"

// opView is the JSON and template shape of one operation.
type opView struct {
	Status    loadstate.Status `json:"status"`
	Loaded    bool             `json:"loaded"`
	Error     string           `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}

func opState[T any](st loadstate.State[T]) opView {
	v := opView{Status: st.Status, Loaded: st.HasValue}
	if st.Err != nil {
		v.Error = api.Category(st.Err)
		v.Message = api.Message(st.Err)
	}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

func (v opView) Loading() bool { return v.Status == loadstate.Loading }
func (v opView) Failed() bool { return v.Status == loadstate.Failed }

// lookup returns the caller's existing session, or nil.
func (s *Server) lookup(r *http.Request) *session.Session {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	sess, _ := s.sessions.Get(c.Value)
	return sess
}

// session returns the caller's session, issuing a cookie for new ones.
// Only a personal load creates sessions.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sess := s.sessions.GetOrCreate(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

type statusResponse struct {
	Online   bool   `json:"online"`
	Rankings opView `json:"rankings"`
	Rates    opView `json:"rates"`
	Personal opView `json:"personal"`
	Clients  int    `json:"clients"`
}

// personal reports sess's load, or an idle one when there is no session.
func personal(sess *session.Session) opView {
	if sess == nil {
		return opView{Status: loadstate.Idle}
	}
	return opState(sess.Personal.State())
}

func (s *Server) status(sess *session.Session) statusResponse {
	return statusResponse{
		Online:   s.Online(),
		Rankings: opState(s.rankings.State()),
		Rates:    opState(s.rates.State()),
		Personal: personal(sess),
		Clients:  s.hub.len(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(s.lookup(r)))
}

type homePage struct {
	Title       string
	Online      bool
	Rankings    opView
	TotalMedals string
	Tables      []ranking.Table
	Rates       opView
	TotalUsers  string
	RateRows    []rateRow
}

type rateRow struct {
	ID      string
	Count   string
	Percent string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	rk := s.rankings.State()
	rt := s.rates.State()
	page := homePage{
		Title:    "ランキング",
		Online:   s.Online(),
		Rankings: opState(rk),
		Rates:    opState(rt),
	}
	if rk.HasValue {
		page.TotalMedals = s.tables.TotalMedals(rk.Value)
		page.Tables = s.tables.RenderAll(rk.Value)
	}
	if rt.HasValue && rt.Value != nil {
		page.TotalUsers = format.Int(s.opts.Lang, int64(rt.Value.TotalUsers))
		for _, row := range rt.Value.Sorted() {
			page.RateRows = append(page.RateRows, rateRow{
				ID:      row.ID,
				Count:   format.Int(s.opts.Lang, int64(row.Count)),
				Percent: format.Percent(row.Rate.Rate),
			})
		}
	}
	s.render(w, http.StatusOK, "home", page)
}

type statsPage struct {
	Title    string
	Online   bool
	URL      string
	Personal opView
	Entries  []record.Entry
	Busy     bool
}

func (s *Server) statsPage(sess *session.Session) statsPage {
	page := statsPage{
		Title:    "統計",
		Online:   s.Online(),
		Personal: personal(sess),
	}
	if sess == nil {
		return page
	}
	page.URL = sess.LastURL()
	if st := sess.Personal.State(); st.HasValue {
		page.Entries = s.records.Render(st.Value)
	}
	return page
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(r)
	s.render(w, http.StatusOK, "stats", s.statsPage(sess))
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	raw := strings.TrimSpace(r.FormValue("url"))
	_, ok := sess.Personal.Start(true, func() (record.Record, error) {
		rec, err := s.api.FetchPersonalRecord(context.Background(), raw)
		if err != nil {
			log.Printf("stats: session=%s load failed (%s): %v", sess.ID, api.Category(err), err)
		}
		return rec, err
	})
	if !ok {
		if wantsJSON(r) {
			writeError(w, http.StatusConflict, "a load is already in progress")
			return
		}
		page := s.statsPage(sess)
		page.Busy = true
		s.render(w, http.StatusConflict, "stats", page)
		return
	}
	sess.SetLastURL(raw)
	if wantsJSON(r) {
		writeJSON(w, http.StatusAccepted, opState(sess.Personal.State()))
		return
	}
	http.Redirect(w, r, "/stats", http.StatusSeeOther)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(r)
	if sess != nil {
		sess.Personal.Dismiss()
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, personal(sess))
		return
	}
	http.Redirect(w, r, "/stats", http.StatusSeeOther)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	started := s.RefreshRankings()
	s.refreshRates()
	if wantsJSON(r) {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"started":  started,
			"rankings": opState(s.rankings.State()),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePrivacy(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "privacy", struct {
		Title  string
		Online bool
	}{Title: "プライバシーポリシー", Online: s.Online()})
}

func (s *Server) render(w http.ResponseWriter, code int, name string, data any) {
	t, ok := s.pages[name]
	if !ok {
		writeError(w, http.StatusInternalServerError, "unknown page "+name)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("web: render %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}
