// Package dashboard serves a read-only WebSocket feed of engine telemetry,
// grounded on pkg/moonraker's WSClient read/write pump pattern but scaled
// down to a single broadcast topic instead of Moonraker's subscription
// model: cmd/stepcore-sim's -watch flag points a browser or script at this
// to see queue depths and miss counters update live while it runs a
// simulated print.
package dashboard

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is one broadcast frame of engine state.
type Snapshot struct {
	Time                float64    `json:"time"`
	MoveSegQueueDepth   int        `json:"move_segment_queue_depth"`
	StepEventQueueDepth int        `json:"step_event_queue_depth"`
	StepDeadlineMisses  uint32     `json:"step_deadline_misses"`
	StepEventMisses     uint32     `json:"step_event_misses"`
	PositionMM          [4]float64 `json:"position_mm"`
}

// Source is polled once per broadcast tick to produce the next Snapshot.
type Source func() Snapshot

// Server serves "/ws" for live snapshots and "/" for a minimal status page.
type Server struct {
	addr   string
	source Source
	period time.Duration

	upgrader websocket.Upgrader
	http     *http.Server

	mu       sync.RWMutex
	clients  map[int64]*client
	nextID   int64
	running  atomic.Bool
}

type client struct {
	id     int64
	conn   *websocket.Conn
	sendCh chan Snapshot
	done   chan struct{}
}

// New creates a dashboard server that polls source every period and
// broadcasts the result to every connected client.
func New(addr string, period time.Duration, source Source) *Server {
	s := &Server{
		addr:    addr,
		source:  source,
		period:  period,
		clients: make(map[int64]*client),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Start launches the HTTP listener and broadcast loop in background
// goroutines and returns immediately.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleRoot)

	s.http = &http.Server{Addr: s.addr, Handler: mux}
	s.running.Store(true)

	go s.broadcastLoop()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go s.http.Serve(ln)
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("stepcore-sim dashboard: connect a WebSocket client to /ws\n"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: upgrade failed: %v", err)
		return
	}

	id := atomic.AddInt64(&s.nextID, 1)
	c := &client{id: id, conn: conn, sendCh: make(chan Snapshot, 8), done: make(chan struct{})}

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	go c.writePump()
	go c.readPump(s)
}

func (c *client) readPump(s *Server) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case snap, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for range ticker.C {
		if !s.running.Load() {
			return
		}
		snap := s.source()
		s.mu.RLock()
		for _, c := range s.clients {
			select {
			case c.sendCh <- snap:
			default:
			}
		}
		s.mu.RUnlock()
	}
}

// Stop shuts the dashboard server down.
func (s *Server) Stop() {
	s.running.Store(false)
	if s.http != nil {
		s.http.Close()
	}
}

// MarshalSnapshot is a convenience for callers that want the JSON form
// without going through the WebSocket (e.g. a one-shot HTTP status probe).
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}
