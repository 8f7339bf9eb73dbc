package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub { return NewHub(zerolog.Nop()) }

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := newTestHub()
	client := NewClient(TopicWard)

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(TopicWard) != 1 {
		t.Fatalf("after register: clients=%d topic=%d", hub.ClientCount(), hub.TopicCount(TopicWard))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(TopicWard) != 0 {
		t.Fatalf("after unregister: clients=%d topic=%d", hub.ClientCount(), hub.TopicCount(TopicWard))
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send to be closed")
	}
	hub.Unregister(client)
}

func TestHub_RegisterDeduplicatesTopics(t *testing.T) {
	hub := newTestHub()
	client := NewClient(TopicWard, TopicWard, "")
	hub.Register(client)

	if len(client.Topics) != 1 {
		t.Errorf("topics = %v", client.Topics)
	}
	hub.Subscribe(client, []string{TopicWard})
	if len(client.Topics) != 1 || hub.TopicCount(TopicWard) != 1 {
		t.Errorf("resubscribe duplicated topic: %v", client.Topics)
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := newTestHub()
	subscriber := NewClient(TopicWard)
	other := NewClient("outro")
	hub.Register(subscriber)
	hub.Register(other)

	n := hub.Broadcast(TopicWard, Event{Type: "ward.admission.discharged", Topic: TopicWard, AdmissionID: "a1"})
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}

	select {
	case msg := <-subscriber.Send:
		var got Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.AdmissionID != "a1" || got.Type != "ward.admission.discharged" {
			t.Errorf("unexpected event %+v", got)
		}
	default:
		t.Fatal("subscriber received nothing")
	}
	select {
	case <-other.Send:
		t.Fatal("non-subscriber received an event")
	default:
	}
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()
	client := &Client{ID: "slow", Topics: []string{TopicWard}, Send: make(chan []byte, 1)}
	hub.Register(client)

	if n := hub.Broadcast(TopicWard, Event{Type: "a"}); n != 1 {
		t.Fatalf("first broadcast delivered %d", n)
	}
	if n := hub.Broadcast(TopicWard, Event{Type: "b"}); n != 0 {
		t.Fatalf("second broadcast should be dropped, delivered %d", n)
	}
}

func TestHub_BroadcastToEmptyTopic(t *testing.T) {
	if n := newTestHub().Broadcast("nobody", Event{Type: "x"}); n != 0 {
		t.Errorf("delivered %d", n)
	}
}

func TestHub_PublishDefaultsTopicAndTimestamp(t *testing.T) {
	hub := newTestHub()
	client := NewClient(TopicWard)
	hub.Register(client)

	if err := hub.Publish(context.Background(), Event{Type: "ward.patient.updated", PatientID: "p1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	var got Event
	if err := json.Unmarshal(<-client.Send, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Topic != TopicWard || got.Timestamp.IsZero() || got.PatientID != "p1" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := newTestHub()
	client := NewClient()
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"leitos", "pacientes", "alta"}})
	if len(client.Topics) != 3 {
		t.Fatalf("topics = %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"leitos", "alta"}})
	if hub.TopicCount("leitos") != 0 || hub.TopicCount("alta") != 0 || hub.TopicCount("pacientes") != 1 {
		t.Errorf("counts leitos=%d alta=%d pacientes=%d", hub.TopicCount("leitos"), hub.TopicCount("alta"), hub.TopicCount("pacientes"))
	}
	if len(client.Topics) != 1 || client.Topics[0] != "pacientes" {
		t.Errorf("remaining topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "dance"})
	if len(client.Topics) != 1 {
		t.Error("unknown action must not change subscriptions")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(TopicWard)
			hub.Register(c)
			hub.Broadcast(TopicWard, Event{Type: "tick"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://nir.hospital.ce.gov.br/"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(req) {
		t.Error("requests without Origin are allowed")
	}
	req.Header.Set("Origin", "https://nir.hospital.ce.gov.br")
	if !check(req) {
		t.Error("configured origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Error("unknown origin accepted")
	}
	if !originChecker([]string{"*"})(req) {
		t.Error("wildcard should accept any origin")
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	h := NewHandler(newTestHub(), nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	if err := h.HandleConnect(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_FullUpgrade(t *testing.T) {
	hub := newTestHub()
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e)
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return hub.TopicCount(TopicWard) == 1 })

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"pacientes"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.TopicCount("pacientes") == 1 })

	_ = hub.Publish(context.Background(), Event{Type: "ward.admission.discharged", AdmissionID: "a1", BedID: "b1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "ward.admission.discharged" || got.BedID != "b1" {
		t.Errorf("unexpected event %+v", got)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHandler_TopicsQuery(t *testing.T) {
	hub := newTestHub()
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e)
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=pacientes,alta"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.TopicCount("pacientes") == 1 && hub.TopicCount("alta") == 1 })
	if hub.TopicCount(TopicWard) != 0 {
		t.Error("explicit topics replace the default")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
