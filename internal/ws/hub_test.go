package ws

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (s *recordingSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("boom")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestHubBroadcastReachesGroupOnly(t *testing.T) {
	hub := NewHub(nil)
	a1, a2, b := &recordingSubscriber{}, &recordingSubscriber{}, &recordingSubscriber{}
	hub.Register("user:a", a1)
	hub.Register("user:a", a2)
	hub.Register("user:b", b)

	delivered, failed := hub.Broadcast("user:a", []byte("hi"))
	if delivered != 2 || failed != 0 {
		t.Fatalf("expected 2 delivered 0 failed, got %d/%d", delivered, failed)
	}
	if b.count() != 0 {
		t.Fatal("group b should not receive group a payloads")
	}
}

func TestHubDropsFailingClients(t *testing.T) {
	hub := NewHub(nil)
	bad := &recordingSubscriber{fail: true}
	good := &recordingSubscriber{}
	hub.Register("user:a", bad)
	hub.Register("user:a", good)

	delivered, failed := hub.Broadcast("user:a", []byte("x"))
	if delivered != 1 || failed != 1 {
		t.Fatalf("expected 1/1, got %d/%d", delivered, failed)
	}
	if !bad.closed {
		t.Fatal("expected failing client to be closed")
	}
	if hub.Size("user:a") != 1 {
		t.Fatalf("expected failing client removed, size=%d", hub.Size("user:a"))
	}
}

func TestHubBroadcastAllDeduplicates(t *testing.T) {
	hub := NewHub(nil)
	shared := &recordingSubscriber{}
	other := &recordingSubscriber{}
	hub.Register("user:a", shared)
	hub.Register("user:b", shared)
	hub.Register("user:c", other)

	delivered, _ := hub.BroadcastAll([]byte("all"))
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if shared.count() != 1 {
		t.Fatalf("shared subscriber should receive once, got %d", shared.count())
	}
}

func TestHubUnregisterUnknownIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Unregister("user:none", &recordingSubscriber{})
	if hub.Size("user:none") != 0 {
		t.Fatal("expected empty group")
	}
}

func TestSSEClientFramesPayloads(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, nil)

	if err := client.Send([]byte(`{"event":"new-post"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "id: 1\ndata: {\"event\":\"new-post\"}\n\n") {
		t.Fatalf("unexpected frame: %q", body)
	}
	if !strings.Contains(body, ": ping\n\n") {
		t.Fatalf("missing heartbeat: %q", body)
	}

	client.Close()
	if err := client.Send([]byte("late")); err == nil {
		t.Fatal("expected error after close")
	}
}
