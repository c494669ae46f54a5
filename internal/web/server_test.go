package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pefman/medal-dashboard/internal/api"
	"github.com/pefman/medal-dashboard/internal/loadstate"
	"github.com/pefman/medal-dashboard/internal/ranking"
	"github.com/pefman/medal-dashboard/internal/record"
)

type stubAPI struct {
	rankings func() (*ranking.Snapshot, error)
	personal func(url string) (record.Record, error)
	up       atomic.Bool
}

func (s *stubAPI) FetchRankings(context.Context) (*ranking.Snapshot, error) {
	if s.rankings == nil {
		return nil, errors.New("no rankings")
	}
	return s.rankings()
}

func (s *stubAPI) FetchAchievementRates(context.Context) (*ranking.AchievementRates, error) {
	return &ranking.AchievementRates{TotalUsers: 10, Rates: map[string]ranking.Rate{"first": {Count: 5, Rate: 0.5}}}, nil
}

func (s *stubAPI) FetchPersonalRecord(_ context.Context, url string) (record.Record, error) {
	if s.personal == nil {
		return record.Record{}, api.ErrNotFound
	}
	return s.personal(url)
}

func (s *stubAPI) Ping(context.Context) bool { return s.up.Load() }

func newTestServer(t *testing.T, stub *stubAPI) (*Server, http.Handler) {
	t.Helper()
	s, err := New(stub, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, s.Router()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for state change")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func postForm(h http.Handler, path, body string, cookies []*http.Cookie, jsonAccept bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if jsonAccept {
		req.Header.Set("Accept", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func get(h http.Handler, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sampleRecord(t *testing.T) record.Record {
	t.Helper()
	rec, err := record.Parse([]byte(`{"medal_get":1500000,"l_achieve":["a","b","c"],"version":"2"}`))
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestLoadWhileLoadingConflicts(t *testing.T) {
	release := make(chan struct{})
	rec := sampleRecord(t)
	stub := &stubAPI{personal: func(string) (record.Record, error) {
		<-release
		return rec, nil
	}}
	s, h := newTestServer(t, stub)

	first := postForm(h, "/stats/load", "url=https://example.test/save", nil, true)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first load = %d, want 202", first.Code)
	}
	cookies := first.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie issued")
	}

	second := postForm(h, "/stats/load", "url=https://example.test/save", cookies, true)
	if second.Code != http.StatusConflict {
		t.Fatalf("second load = %d, want 409", second.Code)
	}
	html := postForm(h, "/stats/load", "url=https://example.test/save", cookies, false)
	if html.Code != http.StatusConflict {
		t.Fatalf("form load = %d, want 409", html.Code)
	}

	// Another browser is not blocked.
	other := postForm(h, "/stats/load", "url=https://example.test/other", nil, true)
	if other.Code != http.StatusAccepted {
		t.Fatalf("other session load = %d, want 202", other.Code)
	}

	close(release)
	sess, ok := s.sessions.Get(cookies[0].Value)
	if !ok {
		t.Fatal("session missing")
	}
	waitFor(t, func() bool { return sess.Personal.State().Status == loadstate.Succeeded })
}

func TestStatsPageRendersRecord(t *testing.T) {
	rec := sampleRecord(t)
	stub := &stubAPI{personal: func(url string) (record.Record, error) {
		if url != "https://example.test/save" {
			t.Errorf("url = %q", url)
		}
		return rec, nil
	}}
	s, h := newTestServer(t, stub)

	rr := postForm(h, "/stats/load", "url=+https://example.test/save+", nil, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/stats" {
		t.Fatalf("load = %d %q", rr.Code, rr.Header().Get("Location"))
	}
	cookies := rr.Result().Cookies()
	sess, _ := s.sessions.Get(cookies[0].Value)
	waitFor(t, func() bool { return sess.Personal.State().Status == loadstate.Succeeded })

	page := get(h, "/stats", cookies)
	if page.Code != http.StatusOK {
		t.Fatalf("stats = %d", page.Code)
	}
	body := page.Body.String()
	for _, want := range []string{"1,500,000", "a, b, c", "medal_get", "https://example.test/save"} {
		if !strings.Contains(body, want) {
			t.Errorf("stats page missing %q", want)
		}
	}
}

func TestLoadFailureShowsMessageAndDismisses(t *testing.T) {
	s, h := newTestServer(t, &stubAPI{})

	rr := postForm(h, "/stats/load", "url=https://example.test/missing", nil, true)
	cookies := rr.Result().Cookies()
	sess, _ := s.sessions.Get(cookies[0].Value)
	waitFor(t, func() bool { return sess.Personal.State().Status == loadstate.Failed })

	body := get(h, "/stats", cookies).Body.String()
	if !strings.Contains(body, api.Message(api.ErrNotFound)) {
		t.Errorf("stats page missing error message")
	}

	dis := postForm(h, "/stats/dismiss", "", cookies, true)
	if dis.Code != http.StatusOK {
		t.Fatalf("dismiss = %d", dis.Code)
	}
	var view map[string]any
	if err := json.Unmarshal(dis.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view["status"] != "idle" || view["error"] != nil {
		t.Errorf("after dismiss = %v", view)
	}
	if strings.Contains(get(h, "/stats", cookies).Body.String(), "personal-error") {
		t.Error("error still shown after dismiss")
	}
}

func TestRankingReloadFailureKeepsSnapshot(t *testing.T) {
	var calls atomic.Int32
	stub := &stubAPI{rankings: func() (*ranking.Snapshot, error) {
		if calls.Add(1) == 1 {
			return &ranking.Snapshot{
				TotalMedals: 42000000,
				Lists: map[string]ranking.List{
					"achievements_count": {{UserID: "alice", Value: json.Number("12")}},
				},
			}, nil
		}
		return nil, &api.HTTPError{Status: 500}
	}}
	s, h := newTestServer(t, stub)

	if !s.RefreshRankings() {
		t.Fatal("first refresh refused")
	}
	waitFor(t, func() bool { return s.rankings.State().Status == loadstate.Succeeded })

	rr := postForm(h, "/rankings/reload", "", nil, false)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("reload = %d", rr.Code)
	}
	waitFor(t, func() bool { return s.rankings.State().Status == loadstate.Failed })

	st := s.rankings.State()
	if !st.HasValue || st.Value.TotalMedals != 42000000 {
		t.Fatalf("snapshot lost after failed reload: %+v", st)
	}
	body := get(h, "/", nil).Body.String()
	for _, want := range []string{"42,000,000", "1位", "12個", "alice", "gold"} {
		if !strings.Contains(body, want) {
			t.Errorf("home page missing %q", want)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	stub := &stubAPI{}
	stub.up.Store(true)
	s, h := newTestServer(t, stub)
	s.ping(context.Background())

	rr := get(h, "/api/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	var got struct {
		Online   bool           `json:"online"`
		Rankings map[string]any `json:"rankings"`
		Rates    map[string]any `json:"rates"`
		Personal map[string]any `json:"personal"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if !got.Online {
		t.Error("online = false, want true")
	}
	for name, v := range map[string]map[string]any{"rankings": got.Rankings, "rates": got.Rates, "personal": got.Personal} {
		if v["status"] != "idle" || v["loaded"] != false {
			t.Errorf("%s = %v, want idle and not loaded", name, v)
		}
	}
}

func TestStaticRoutes(t *testing.T) {
	_, h := newTestServer(t, &stubAPI{})
	tests := []struct {
		path string
		code int
		want string
	}{
		{"/healthz", http.StatusOK, `"ok"`},
		{"/privacy", http.StatusOK, "Cookie"},
		{"/", http.StatusOK, "ランキングはまだありません"},
		{"/nope", http.StatusNotFound, "no such page"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(h, tt.path, nil)
			if rr.Code != tt.code {
				t.Fatalf("code = %d, want %d", rr.Code, tt.code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
}

func TestWebsocketPushesRankingState(t *testing.T) {
	release := make(chan struct{})
	stub := &stubAPI{rankings: func() (*ranking.Snapshot, error) {
		<-release
		return &ranking.Snapshot{}, nil
	}}
	_, h := newTestServer(t, stub)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer close(release)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		if resp != nil {
			b, _ := io.ReadAll(resp.Body)
			t.Fatalf("dial: %v (%s)", err, b)
		}
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "status" {
		t.Fatalf("first message = %+v, %v", msg, err)
	}

	if err := conn.WriteJSON(wsMsg{Type: "reload_rankings"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	var view opView
	if err := json.Unmarshal(msg.Data, &view); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "rankings" || view.Status != loadstate.Loading {
		t.Errorf("push = %s %+v, want rankings loading", msg.Type, view)
	}

	if err := conn.WriteJSON(wsMsg{Type: "reload_rankings"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "busy" {
		t.Errorf("second reload = %+v, %v, want busy", msg, err)
	}
}

func TestSlowWebsocketClientDoesNotBlockHandlers(t *testing.T) {
	stub := &stubAPI{rankings: func() (*ranking.Snapshot, error) { return &ranking.Snapshot{}, nil }}
	s, h := newTestServer(t, stub)
	srv := httptest.NewServer(h)
	defer srv.Close()

	// Never read from this connection.
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return s.hub.len() == 1 })

	big := strings.Repeat("x", 64<<10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.hub.broadcast(wsMsg{Type: "filler", Data: big})
		}
		postForm(h, "/rankings/reload", "", nil, true)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a client that does not read")
	}
	waitFor(t, func() bool { return s.hub.len() == 0 })
}

func TestReadOnlyRequestsDoNotCreateSessions(t *testing.T) {
	s, h := newTestServer(t, &stubAPI{})
	for _, path := range []string{"/", "/stats", "/api/status", "/privacy"} {
		rr := get(h, path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s = %d", path, rr.Code)
		}
		if c := rr.Header().Get("Set-Cookie"); c != "" {
			t.Errorf("%s set cookie %q", path, c)
		}
	}
	unknown := []*http.Cookie{{Name: sessionCookie, Value: "not-a-session"}}
	if rr := get(h, "/stats", unknown); rr.Header().Get("Set-Cookie") != "" {
		t.Error("unknown cookie replaced on GET")
	}
	dis := postForm(h, "/stats/dismiss", "", nil, true)
	if dis.Code != http.StatusOK || !strings.Contains(dis.Body.String(), `"idle"`) {
		t.Errorf("dismiss without session = %d %s", dis.Code, dis.Body.String())
	}
	if n := s.sessions.Len(); n != 0 {
		t.Fatalf("%d sessions created", n)
	}

	postForm(h, "/stats/load", "url=https://example.test/save", nil, true)
	if n := s.sessions.Len(); n != 1 {
		t.Fatalf("load created %d sessions, want 1", n)
	}
}

func TestLoadRefusesURLOutsideDataHosts(t *testing.T) {
	var internalHits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits.Add(1)
		_, _ = w.Write([]byte(`{"admin_token":"s3cr3t-internal-value"}`))
	}))
	defer internal.Close()
	data := httptest.NewServer(http.NotFoundHandler())
	defer data.Close()

	s, err := New(api.NewClient(data.URL+"/api/v4", data.URL+"/api"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	h := s.Router()

	rr := postForm(h, "/stats/load", "url="+internal.URL+"/admin", nil, true)
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("load = %d, no cookie", rr.Code)
	}
	sess, _ := s.sessions.Get(cookies[0].Value)
	waitFor(t, func() bool { return sess.Personal.State().Status == loadstate.Failed })

	if !errors.Is(sess.Personal.State().Err, api.ErrInvalidURL) {
		t.Errorf("err = %v, want invalid URL", sess.Personal.State().Err)
	}
	body := get(h, "/stats", cookies).Body.String()
	if strings.Contains(body, "s3cr3t-internal-value") || strings.Contains(body, "admin_token") {
		t.Error("internal response rendered on stats page")
	}
	if !strings.Contains(body, api.Message(api.ErrHostNotAllowed)) {
		t.Error("stats page missing host error message")
	}
	if n := internalHits.Load(); n != 0 {
		t.Fatalf("internal server hit %d times", n)
	}
}
