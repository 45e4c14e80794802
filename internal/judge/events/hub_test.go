package events_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"veloj/internal/judge/events"
	"veloj/internal/judge/model"
)

// dialHub starts a websocket endpoint that subscribes every connection to
// the given submission and returns the client end plus the server end the
// hub is keyed on.
func dialHub(t *testing.T, hub *events.Hub, submissionID string) (client, server *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Subscribe(submissionID, conn)
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	select {
	case server = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server connection was not established")
	}
	return conn, server
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, model.CompletedEvent) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var frame struct {
		Event string               `json:"event"`
		Data  model.CompletedEvent `json:"data"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", payload, err)
	}
	return frame.Event, frame.Data
}

func TestPublishCompletedReachesSubscriber(t *testing.T) {
	hub := events.NewHub()
	conn, _ := dialHub(t, hub, "sub-1")

	hub.PublishCompleted(model.CompletedEvent{
		SubmissionID: "sub-1",
		Verdict:      model.VerdictAccepted,
		Score:        100,
		Passed:       3,
		Total:        3,
	})

	name, data := readEvent(t, conn)
	if name != model.EventCompleted {
		t.Fatalf("first frame event = %q, want %q", name, model.EventCompleted)
	}
	if data.Verdict != model.VerdictAccepted || data.Score != 100 {
		t.Fatalf("event data = %+v", data)
	}

	// The same payload is repeated under the legacy event name.
	legacyName, legacyData := readEvent(t, conn)
	if legacyName != model.EventCompletedLegacy {
		t.Fatalf("second frame event = %q, want %q", legacyName, model.EventCompletedLegacy)
	}
	if legacyData.SubmissionID != "sub-1" {
		t.Fatalf("legacy event data = %+v", legacyData)
	}
}

func TestPublishIsScopedToRoom(t *testing.T) {
	hub := events.NewHub()
	conn, _ := dialHub(t, hub, "sub-other")

	hub.PublishCompleted(model.CompletedEvent{SubmissionID: "sub-1", Verdict: model.VerdictAccepted})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("subscriber of another submission must not receive the event")
	}
}

func TestWatchersAndUnsubscribe(t *testing.T) {
	hub := events.NewHub()
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Subscribe("sub-1", conn)
		serverConns <- conn
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		defer conn.Close()
	}

	if got := hub.Watchers("sub-1"); got != 2 {
		t.Fatalf("watchers = %d, want 2", got)
	}
	hub.Unsubscribe("sub-1", <-serverConns)
	if got := hub.Watchers("sub-1"); got != 1 {
		t.Fatalf("watchers after unsubscribe = %d, want 1", got)
	}
}

func TestConcurrentPublishersShareOneConnection(t *testing.T) {
	hub := events.NewHub()
	conn, _ := dialHub(t, hub, "sub-1")

	const publishers = 8
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.PublishCompleted(model.CompletedEvent{
				SubmissionID: "sub-1",
				Verdict:      model.VerdictAccepted,
			})
		}()
	}
	wg.Wait()

	// Every publisher emits the event under both names; all frames must
	// arrive intact on the single shared connection.
	for i := 0; i < publishers*2; i++ {
		name, data := readEvent(t, conn)
		if name != model.EventCompleted && name != model.EventCompletedLegacy {
			t.Fatalf("frame %d event = %q", i, name)
		}
		if data.SubmissionID != "sub-1" {
			t.Fatalf("frame %d data = %+v", i, data)
		}
	}
}

func TestSendCompletedTargetsOneConnection(t *testing.T) {
	hub := events.NewHub()
	late, lateServer := dialHub(t, hub, "sub-1")
	other, _ := dialHub(t, hub, "sub-1")

	hub.SendCompleted(lateServer, model.CompletedEvent{
		SubmissionID: "sub-1",
		Verdict:      model.VerdictAccepted,
	})

	if name, _ := readEvent(t, late); name != model.EventCompleted {
		t.Fatalf("replayed frame event = %q", name)
	}
	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("replay must not reach the rest of the room")
	}
}

func TestSendCompletedToUnsubscribedConnIsNoOp(t *testing.T) {
	hub := events.NewHub()
	client, server := dialHub(t, hub, "sub-1")
	hub.Unsubscribe("sub-1", server)

	hub.SendCompleted(server, model.CompletedEvent{SubmissionID: "sub-1"})

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("unsubscribed connection must not receive a replay")
	}
}

func TestNilHubIsNoOp(t *testing.T) {
	var hub *events.Hub
	hub.Subscribe("sub-1", nil)
	hub.Unsubscribe("sub-1", nil)
	hub.PublishCompleted(model.CompletedEvent{SubmissionID: "sub-1"})
	if got := hub.Watchers("sub-1"); got != 0 {
		t.Fatalf("nil hub watchers = %d, want 0", got)
	}
}
