// Package console implements the read-only half of the Console service
// (spec §6): a live `ServerStatus` feed of coupler/publisher state pushed
// to connected clients over a websocket, built on the router's own
// bookkeeping rather than a separate RPC surface.
package console

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/router"
)

// CouplerStatus mirrors spec §6's coupler enumeration fields.
type CouplerStatus struct {
	Name     string `json:"name"`
	Class    string `json:"class"`
	DevState string `json:"dev_state"`
	MsgIn    uint64 `json:"msg_in"`
}

// PublisherStatus mirrors the publisher half of the same enumeration.
type PublisherStatus struct {
	Name     string `json:"name"`
	DevState string `json:"dev_state"`
	MsgOut   uint64 `json:"msg_out"`
	Dropped  uint64 `json:"dropped"`
}

// ServerStatus is one status-push payload (spec §6 `ServerStatus`).
type ServerStatus struct {
	Time       time.Time         `json:"time"`
	Couplers   []CouplerStatus   `json:"couplers"`
	Publishers []PublisherStatus `json:"publishers"`
}

// devState maps a coupler.Status onto spec §6's four-value dev_state enum;
// Stopped/Failed both read as NOT_READY to an external client, since
// neither "retrying" nor "given up" is distinguishable from "not yet
// opened" without exposing the retry counters not covered by SPEC_FULL.
func devState(s coupler.Status) string {
	switch s {
	case coupler.Open:
		return "OPEN"
	case coupler.Connected:
		return "CONNECTED"
	case coupler.Active:
		return "ACTIVE"
	default:
		return "NOT_READY"
	}
}

// Server serves the websocket status feed. Build one with New, register
// its Handler on an http.ServeMux, and call Run to start the periodic
// broadcast loop.
type Server struct {
	router   *router.Router
	upgrader websocket.Upgrader
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a Server that snapshots r every interval (default 1s) and
// pushes the snapshot to every connected client.
func New(r *router.Router, interval time.Duration) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		router:   r,
		interval: interval,
		clients:  map[*websocket.Conn]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler upgrades the HTTP connection and registers it as a status-push
// client. It blocks, reading (and discarding) client frames only to
// detect disconnects, until the connection closes.
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("console: upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	_ = conn.WriteMessage(websocket.TextMessage, s.snapshotJSON())
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Run broadcasts a status snapshot to every connected client every
// interval, until done is closed.
func (s *Server) Run(done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			s.closeAll()
			return
		case ev, ok := <-s.router.Events():
			if !ok {
				continue
			}
			log.Printf("console: %s -> %s", ev.Coupler, ev.Status)
			s.broadcast(s.snapshotJSON())
		case <-ticker.C:
			s.broadcast(s.snapshotJSON())
		}
	}
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func (s *Server) snapshot() ServerStatus {
	status := ServerStatus{Time: time.Now()}
	for _, c := range s.router.Couplers() {
		status.Couplers = append(status.Couplers, CouplerStatus{
			Name:     c.Name(),
			Class:    couplerClass(c),
			DevState: devState(c.Status()),
			MsgIn:    couplerMsgIn(c),
		})
	}
	for _, p := range s.router.Publishers() {
		enqueued, dropped := p.Stats()
		status.Publishers = append(status.Publishers, PublisherStatus{
			Name:     p.Name(),
			DevState: devState(p.Status()),
			MsgOut:   enqueued,
			Dropped:  dropped,
		})
	}
	return status
}

func (s *Server) snapshotJSON() []byte {
	b, err := json.Marshal(s.snapshot())
	if err != nil {
		log.Printf("console: marshal status: %v", err)
		return []byte(`{}`)
	}
	return b
}

// classifier and counter are satisfied by every coupler driver variant
// (via the embedded *coupler.Base); neither is part of the Coupler
// interface itself since only a status surface needs them.
type classifier interface {
	Class() string
}

type counter interface {
	MsgIn() uint64
}

func couplerClass(c coupler.Coupler) string {
	if cl, ok := c.(classifier); ok {
		return cl.Class()
	}
	return "unknown"
}

func couplerMsgIn(c coupler.Coupler) uint64 {
	if ct, ok := c.(counter); ok {
		return ct.MsgIn()
	}
	return 0
}
