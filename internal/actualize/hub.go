package actualize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/simkernel/internal/world"
)

const (
	writeWait        = 5 * time.Second
	maxViewerMessage = 4 * 1024
	defaultBacklog   = 16
)

// Hub broadcasts each flushed frame as a JSON text message to every
// connected viewer. A new viewer first receives the latest frame. Viewers
// that fall behind by more than the backlog miss frames rather than
// stalling the tick.
//
// Thread-safety: safe for concurrent use.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	backlog  int

	mu      sync.Mutex
	viewers map[uint64]*viewer
	last    []byte
	closed  bool

	nextID  atomic.Uint64
	dropped atomic.Int64
}

type viewer struct {
	id   uint64
	conn *websocket.Conn
	out  chan []byte
}

var _ world.Sink = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithBacklog sets how many frames may queue per viewer.
func WithBacklog(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.backlog = n
		}
	}
}

// WithCheckOrigin overrides the upgrader's origin check. The default
// accepts every origin.
func WithCheckOrigin(fn func(*http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub creates a hub with no viewers.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger:  slog.Default(),
		backlog: defaultBacklog,
		viewers: make(map[uint64]*viewer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Flush implements world.Sink by broadcasting the frame.
func (h *Hub) Flush(tick int64, subs []world.Submission) error {
	b, err := json.Marshal(newFrame(tick, subs))
	if err != nil {
		return fmt.Errorf("hub: encode frame %d: %w", tick, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for _, v := range h.viewers {
		select {
		case v.out <- b:
		default:
			h.dropped.Add(1)
			h.logger.Debug("viewer behind, frame dropped",
				slog.Uint64("viewer", v.id),
				slog.Int64("tick", tick))
		}
	}
	return nil
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Dropped returns how many frames were skipped for slow viewers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every viewer and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, v := range h.viewers {
		delete(h.viewers, id)
		close(v.out)
	}
	return nil
}

func (h *Hub) add(conn *websocket.Conn) (*viewer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	v := &viewer{id: h.nextID.Add(1), conn: conn, out: make(chan []byte, h.backlog)}
	if h.last != nil {
		v.out <- h.last
	}
	h.viewers[v.id] = v
	return v, true
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v.id]; ok {
		delete(h.viewers, v.id)
		close(v.out)
	}
}

// Handler upgrades requests to websocket viewer connections. Messages
// from viewers are read and discarded; the connection ends when the
// viewer closes it or the hub closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			h.logger.Debug("viewer upgrade failed", slog.Any("error", err))
			return
		}
		defer conn.Close()

		v, ok := h.add(conn)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"),
				time.Now().Add(time.Second))
			return
		}
		h.logger.Info("viewer connected", slog.Uint64("viewer", v.id), slog.String("remote", r.RemoteAddr))
		defer h.logger.Info("viewer disconnected", slog.Uint64("viewer", v.id))
		defer h.remove(v)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-v.out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
							time.Now().Add(time.Second))
						cancel()
						conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						conn.Close()
						return
					}
				}
			}
		}()

		conn.SetReadLimit(maxViewerMessage)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		cancel()
		<-writeDone
	}
}
