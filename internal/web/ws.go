package web

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// wsMsg is the message envelope pushed to browsers.
type wsMsg struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const (
	// writeWait bounds a single frame write to a browser.
	writeWait = 10 * time.Second
	// sendBuffer is how many messages may queue for one browser.
	sendBuffer = 16
)

// wsClient owns one socket. Only its writer goroutine writes to conn.
type wsClient struct {
	conn    *websocket.Conn
	session string
	out     chan wsMsg
	done    chan struct{}
	once    sync.Once
}

func newWSClient(conn *websocket.Conn, session string) *wsClient {
	return &wsClient{
		conn:    conn,
		session: session,
		out:     make(chan wsMsg, sendBuffer),
		done:    make(chan struct{}),
	}
}

// send queues m without blocking. A browser that cannot keep up is dropped.
func (c *wsClient) send(m wsMsg) {
	select {
	case <-c.done:
	case c.out <- m:
	default:
		log.Printf("ws: send buffer full, dropping session=%s", c.session)
		c.close()
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writer drains the queue until the client closes or a write fails.
func (c *wsClient) writer() {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				log.Printf("ws: write error to session=%s: %v", c.session, err)
				c.close()
				return
			}
		}
	}
}

// hub fans state changes out to connected browsers.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub() *hub { return &hub{clients: map[*wsClient]struct{}{}} }

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) snapshot(match func(*wsClient) bool) []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if match == nil || match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (h *hub) broadcast(m wsMsg) {
	for _, c := range h.snapshot(nil) {
		c.send(m)
	}
}

func (h *hub) sendSession(id string, m wsMsg) {
	for _, c := range h.snapshot(func(c *wsClient) bool { return c.session == id }) {
		c.send(m)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	var id string
	if sess != nil {
		id = sess.ID
	}
	c := newWSClient(conn, id)
	s.hub.add(c)
	log.Printf("ws: connect session=%s from=%s", id, r.RemoteAddr)
	go c.writer()
	c.send(wsMsg{Type: "status", Data: s.status(sess)})
	s.wsReader(c)
}

// wsReader handles client messages until the socket closes.
func (s *Server) wsReader(c *wsClient) {
	defer func() {
		s.hub.remove(c)
		c.close()
		log.Printf("ws: closed session=%s", c.session)
	}()
	for {
		var in wsMsg
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error session=%s: %v", c.session, err)
			}
			return
		}
		switch in.Type {
		case "reload_rankings":
			if !s.RefreshRankings() {
				c.send(wsMsg{Type: "busy", Data: "rankings"})
			}
		case "status":
			sess, _ := s.sessions.Get(c.session)
			c.send(wsMsg{Type: "status", Data: s.status(sess)})
		default:
			log.Printf("ws: ignoring message type=%q session=%s", in.Type, c.session)
		}
	}
}
