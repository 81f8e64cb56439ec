package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"gmboard/core/events"
	"gmboard/core/types"
	"gmboard/crypto"
)

const (
	wsWriteTimeout        = 10 * time.Second
	defaultSubscriberSize = 64
)

type streamEvent struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	ch     chan []byte
	filter func(*types.Event) bool
}

// Broadcaster fans leaderboard events out to websocket subscribers. Slow
// subscribers drop events rather than block the engine.
type Broadcaster struct {
	logger *slog.Logger
	buffer int

	mu      sync.Mutex
	next    uint64
	subs    map[uint64]*subscriber
	closed  bool
	dropped uint64
}

func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{logger: logger, buffer: buffer, subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (b *Broadcaster) Emit(evt events.Event) {
	canonical := events.Canonical(evt)
	if b == nil || canonical == nil {
		return
	}
	payload, err := json.Marshal(streamEvent{Type: canonical.Type, Attributes: canonical.Attributes})
	if err != nil {
		b.logger.Warn("encode stream event", slog.Any("error", err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(canonical) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			b.dropped++
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release it. The channel is closed on cancel or Close.
func (b *Broadcaster) Subscribe(filter func(*types.Event) bool) (<-chan []byte, func()) {
	ch := make(chan []byte, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = &subscriber{ch: ch, filter: filter}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Broadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// handleEventsWS streams events, optionally only those touching ?wallet=.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	var filter func(*types.Event) bool
	if raw := strings.TrimSpace(r.URL.Query().Get("wallet")); raw != "" {
		wallet, err := crypto.ParseWallet(raw)
		if err != nil {
			http.Error(w, "invalid wallet", http.StatusBadRequest)
			return
		}
		target := crypto.WalletAddress(wallet).String()
		filter = func(evt *types.Event) bool {
			return evt.Attributes["wallet"] == target || evt.Attributes["replacedBy"] == target
		}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.broadcaster.Subscribe(filter)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-updates:
			if !ok {
				return conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
