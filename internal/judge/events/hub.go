// Package events delivers judging lifecycle events to websocket
// subscribers, one room per submission.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"veloj/internal/judge/model"
	"veloj/pkg/utils/logger"
)

const writeTimeout = 5 * time.Second

// envelope is the wire frame pushed to subscribers.
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// subscriber owns all writes to one connection. Gorilla connections do not
// support concurrent writers, so every frame goes through the per-subscriber
// mutex.
type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *subscriber) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans completion events out to the websocket connections watching each
// submission. All methods are safe for concurrent use, and every method is
// a no-op on a nil hub so wiring the hub stays optional.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]*subscriber
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*websocket.Conn]*subscriber)}
}

// Subscribe registers a connection for one submission's events.
func (h *Hub) Subscribe(submissionID string, conn *websocket.Conn) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[submissionID]
	if !ok {
		room = make(map[*websocket.Conn]*subscriber)
		h.rooms[submissionID] = room
	}
	room[conn] = &subscriber{conn: conn}
}

// Unsubscribe removes a connection; the room is dropped when it empties.
func (h *Hub) Unsubscribe(submissionID string, conn *websocket.Conn) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[submissionID]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, submissionID)
	}
}

// PublishCompleted pushes the terminal event to every watcher of the
// submission, under both the current and the legacy event name. A write
// failure drops only the failing connection.
func (h *Hub) PublishCompleted(event model.CompletedEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.rooms[event.SubmissionID]))
	for _, sub := range h.rooms[event.SubmissionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, payload := range completedFrames(event) {
		for _, sub := range subs {
			h.deliver(event.SubmissionID, sub, payload)
		}
	}
}

// SendCompleted replays the terminal event to a single subscribed
// connection, so late subscribers catch up without the rest of the room
// seeing the frames again.
func (h *Hub) SendCompleted(conn *websocket.Conn, event model.CompletedEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	sub := h.rooms[event.SubmissionID][conn]
	h.mu.RUnlock()
	if sub == nil {
		return
	}
	for _, payload := range completedFrames(event) {
		h.deliver(event.SubmissionID, sub, payload)
	}
}

// completedFrames encodes the event under the canonical and legacy names.
func completedFrames(event model.CompletedEvent) [][]byte {
	frames := make([][]byte, 0, 2)
	for _, name := range []string{model.EventCompleted, model.EventCompletedLegacy} {
		payload, err := json.Marshal(envelope{Event: name, Data: event})
		if err != nil {
			logger.Errorf(context.Background(), "encode %s event for %s: %v", name, event.SubmissionID, err)
			continue
		}
		frames = append(frames, payload)
	}
	return frames
}

func (h *Hub) deliver(submissionID string, sub *subscriber, payload []byte) {
	if err := sub.send(payload); err != nil {
		logger.Warnf(context.Background(), "drop websocket subscriber of %s: %v", submissionID, err)
		h.Unsubscribe(submissionID, sub.conn)
		_ = sub.conn.Close()
	}
}

// Watchers reports how many connections are subscribed to a submission.
func (h *Hub) Watchers(submissionID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[submissionID])
}
