// Package progress serves a live view of a worker pool's rollout progress:
// each worker's latest {rollout, bestScore, randomPct} sample, pushed over
// a websocket and also available as a polled JSON snapshot. Adapted from
// server/server.go's websocket ping-pong plumbing and single-client
// publish loop; the teacher's fastview/cell_views HTML diffing system is
// dropped (there is no 2D grid here to diff), replaced by plain JSON
// since the payload is already a small struct, not a view tree.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/richardlevinson/dshield-planner/worker"
)

var upgrader = websocket.Upgrader{}

const (
	writeWait        = 1 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	closeGracePeriod = 10 * time.Second
	pubResolution    = 100 * time.Millisecond
)

// Server publishes worker.ProgressSample updates. Like server.Server, this
// is intentionally a single-tenant prototype: the snapshot endpoint serves
// any number of pollers, but the websocket feed assumes one connected
// client at a time.
type Server struct {
	addr    string
	samples <-chan worker.ProgressSample

	mu     sync.Mutex
	latest map[int]worker.ProgressSample

	broadcast chan worker.ProgressSample
}

// NewServer constructs a Server that reads from samples (typically
// worker.Pool's Progress channel).
func NewServer(addr string, samples <-chan worker.ProgressSample) *Server {
	return &Server{
		addr:      addr,
		samples:   samples,
		latest:    make(map[int]worker.ProgressSample),
		broadcast: make(chan worker.ProgressSample, 64),
	}
}

// Serve runs the fan-in goroutine and the HTTP server until ctx is
// cancelled or ListenAndServe fails.
func (s *Server) Serve(ctx context.Context) error {
	go s.consume(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/", s.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/progress", s.serveSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.serveWebsocket)

	httpServer := &http.Server{Addr: s.addr, Handler: router}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("progress: serve: %w", err)
	}
	return nil
}

// consume drains samples into the latest-per-worker snapshot and republishes
// onto broadcast for any connected websocket client.
func (s *Server) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-s.samples:
			if !ok {
				return
			}
			s.mu.Lock()
			s.latest[sample.WorkerID] = sample
			s.mu.Unlock()
			select {
			case s.broadcast <- sample:
			default:
			}
		}
	}
}

func (s *Server) snapshot() []worker.ProgressSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]worker.ProgressSample, 0, len(s.latest))
	for _, sample := range s.latest {
		out = append(out, sample)
	}
	return out
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(indexHTML))
}

// serveWebsocket streams broadcast samples to the client, with the same
// ping/pong health-check loop as server.publishEleUpdates.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		log.Println("progress: upgrade:", err)
		return
	}
	defer s.closeWebsocket(ws)
	s.publishSamples(r.Context(), ws)
}

func (s *Server) publishSamples(ctx context.Context, ws *websocket.Conn) {
	last := time.Now()
	pubCtx, cancelPub := context.WithCancel(ctx)
	defer cancelPub()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	lastPong := time.Now()

	pong := make(chan struct{})
	defer close(pong)
	ws.SetPongHandler(func(string) error {
		pong <- struct{}{}
		return nil
	})

	go func() {
		for {
			select {
			case <-pubCtx.Done():
				return
			default:
				if _, _, err := ws.ReadMessage(); err != nil {
					cancelPub()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-pubCtx.Done():
			return
		case <-ticker.C:
			if time.Since(lastPong) > pingPeriod*2 {
				return
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-pong:
			lastPong = time.Now()
		case sample := <-s.broadcast:
			if time.Since(last) < pubResolution {
				continue
			}
			last = time.Now()
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(sample); err != nil {
				return
			}
		}
	}
}

func (s *Server) closeWebsocket(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGracePeriod)
	ws.Close()
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>dshield-planner progress</title></head>
<body>
<h1>Rollout progress</h1>
<pre id="out"></pre>
<script>
const out = document.getElementById("out");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => { out.textContent += ev.data + "\n"; };
</script>
</body>
</html>
`
