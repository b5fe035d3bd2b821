// Package feed pushes lifecycle events to websocket subscribers. The Hub is
// an event bus handler; each connection gets its own buffered queue and a
// slow subscriber loses events rather than stalling the bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/event"
	"github.com/matthewbaird/outbreak/internal/metrics"
)

const (
	queueSize    = 64
	writeTimeout = 5 * time.Second
)

// Hub fans lifecycle events out to websocket subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	logger      *zap.Logger
}

type subscriber struct {
	id    string
	queue chan event.DomainEvent

	mu     sync.RWMutex
	filter SubscribeData
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subscribers: make(map[string]*subscriber), logger: logger.Named("feed")}
}

// HandleEvent queues evt for every subscriber whose filter matches.
func (h *Hub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subscribers {
		if !s.wants(evt) {
			continue
		}
		select {
		case s.queue <- evt:
		default:
			h.logger.Warn("subscriber queue full, dropping event",
				zap.String("subscriber", s.id), zap.String("event_type", evt.EventType))
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) add() *subscriber {
	s := &subscriber{id: uuid.NewString(), queue: make(chan event.DomainEvent, queueSize)}
	h.mu.Lock()
	h.subscribers[s.id] = s
	h.mu.Unlock()
	metrics.FeedSubscribers.Inc()
	return s
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s.id)
	h.mu.Unlock()
	metrics.FeedSubscribers.Dec()
}

// ServeHTTP upgrades to websocket and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	s := h.add()
	defer h.remove(s)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan ServerMessage, 8)
	go func() {
		defer cancel()
		h.readLoop(ctx, conn, s, replies)
	}()

	if !h.send(ctx, conn, ServerMessage{Type: "session", Data: SessionData{SubscriberID: s.id}}) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-replies:
			if !h.send(ctx, conn, msg) {
				return
			}
		case evt := <-s.queue:
			if !h.send(ctx, conn, ServerMessage{Type: "event", Data: eventData(evt)}) {
				return
			}
		}
	}
}

// readLoop handles client messages. Replies go through the writer loop so
// that only one goroutine writes to the connection.
func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, s *subscriber, replies chan<- ServerMessage) {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("feed read", zap.String("subscriber", s.id), zap.Error(err))
			}
			return
		}
		var reply ServerMessage
		switch msg.Type {
		case "subscribe":
			var f SubscribeData
			if err := json.Unmarshal(msg.Data, &f); err != nil {
				reply = errorMessage(msg.ID, "invalid_data", "invalid subscribe data")
				break
			}
			if _, ok := activity.WeightOrder[f.MinWeight]; f.MinWeight != "" && !ok {
				reply = errorMessage(msg.ID, "invalid_weight", fmt.Sprintf("unknown weight: %s", f.MinWeight))
				break
			}
			s.setFilter(f)
			reply = ServerMessage{Type: "subscribed", RequestID: msg.ID, Data: f}
		case "ping":
			reply = ServerMessage{Type: "pong", RequestID: msg.ID}
		default:
			reply = errorMessage(msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) bool {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, msg); err != nil {
		h.logger.Debug("feed write", zap.Error(err))
		return false
	}
	return true
}

func (s *subscriber) setFilter(f SubscribeData) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

func (s *subscriber) wants(evt event.DomainEvent) bool {
	s.mu.RLock()
	f := s.filter
	s.mu.RUnlock()
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, evt.EventType) {
		return false
	}
	if f.MinWeight != "" && !activity.IsAtLeastWeight(evt.Weight, f.MinWeight) {
		return false
	}
	if f.Disease != "" {
		return slices.ContainsFunc(evt.AffectedEntities, func(r activity.SourceRef) bool {
			return r.EntityType == activity.EntityDisease && strings.EqualFold(r.EntityID, f.Disease)
		})
	}
	return true
}

func eventData(evt event.DomainEvent) EventData {
	return EventData{
		ID:         evt.ID,
		EventType:  evt.EventType,
		OccurredAt: evt.OccurredAt,
		Summary:    evt.Summary,
		Category:   evt.Category,
		Weight:     evt.Weight,
		Payload:    evt.Payload,
	}
}

func errorMessage(requestID, code, message string) ServerMessage {
	return ServerMessage{Type: "error", RequestID: requestID, Data: ErrorData{Code: code, Message: message}}
}
