package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/presence"
)

type recordingChannel struct {
	id    string
	mu    sync.Mutex
	got   [][]byte
	err   error
	panic bool
	close int
}

func (c *recordingChannel) ID() string { return c.id }

func (c *recordingChannel) Send(p []byte) error {
	if c.panic {
		panic("socket exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, p)
	return nil
}

func (c *recordingChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close++
}

func (c *recordingChannel) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.got...)
}

type slowChannel struct {
	recordingChannel
	delay time.Duration
}

func (c *slowChannel) Send(p []byte) error {
	time.Sleep(c.delay)
	return c.recordingChannel.Send(p)
}

type fakeGroups struct {
	mu      sync.Mutex
	sent    map[string]int
	members map[string]int
	all     int
}

func (g *fakeGroups) Broadcast(group string, _ []byte) (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent == nil {
		g.sent = make(map[string]int)
	}
	g.sent[group]++
	return g.members[group], 0
}

func (g *fakeGroups) BroadcastAll([]byte) (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.all++
	return 3, 1
}

func (g *fakeGroups) count(group string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent[group]
}

type stubFollowers struct {
	ids []string
	err error
}

func (s stubFollowers) ListFollowers(context.Context, string) ([]string, error) {
	return s.ids, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, raw []byte) domain.Envelope {
	t.Helper()
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestSendToIdentityDirect(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	ch := &recordingChannel{id: "c1"}
	reg.Register("u1", ch)
	groups := &fakeGroups{}
	d := New(reg, groups, nil, quietLogger())

	d.SendToIdentity("u1", domain.EventHealthUpdate, map[string]int{"heartRate": 72})

	msgs := ch.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	env := decode(t, msgs[0])
	if env.Event != domain.EventHealthUpdate || env.SentAt.IsZero() {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if groups.count(Group("u1")) != 0 {
		t.Fatal("direct delivery must not also hit the group")
	}
}

func TestSendToIdentityFallsBackToGroup(t *testing.T) {
	groups := &fakeGroups{members: map[string]int{"user:u2": 2}}
	d := New(presence.NewMemoryRegistry(), groups, nil, quietLogger())

	d.SendToIdentity("u2", domain.EventPostLiked, nil)

	if groups.count("user:u2") != 1 {
		t.Fatalf("expected group fallback for unregistered identity")
	}
}

func TestSendToIdentitySwallowsFailure(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	ch := &recordingChannel{id: "c1", err: errors.New("broken pipe")}
	reg.Register("u1", ch)
	d := New(reg, &fakeGroups{}, nil, quietLogger())

	d.SendToIdentity("u1", domain.EventNewPost, nil)

	if _, ok := reg.Resolve("u1"); ok {
		t.Fatal("expected failed channel to be unregistered")
	}
	if ch.close != 1 {
		t.Fatalf("expected failed channel to be closed once, got %d", ch.close)
	}
}

func TestFanOutAttemptsEverySubscriber(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	healthy := []*recordingChannel{{id: "a"}, {id: "b"}, {id: "c"}}
	for i, ch := range healthy {
		reg.Register([]string{"f1", "f2", "f3"}[i], ch)
	}
	reg.Register("f4", &recordingChannel{id: "d", err: errors.New("closed")})
	reg.Register("f5", &recordingChannel{id: "e", panic: true})
	groups := &fakeGroups{}
	followers := stubFollowers{ids: []string{"f1", "f4", "f2", "f5", "f3", "offline"}}
	d := New(reg, groups, followers, quietLogger())

	attempts := d.FanOutToSubscribers(context.Background(), "author", domain.EventNewPost, map[string]string{"id": "p1"})

	if attempts != 6 {
		t.Fatalf("expected 6 attempts, got %d", attempts)
	}
	for _, ch := range healthy {
		if len(ch.messages()) != 1 {
			t.Fatalf("subscriber %s missed the event", ch.id)
		}
	}
	if groups.count("user:offline") != 1 {
		t.Fatal("expected offline subscriber routed to its group")
	}
}

func TestFanOutSubscriberLoadFailure(t *testing.T) {
	d := New(presence.NewMemoryRegistry(), &fakeGroups{}, stubFollowers{err: errors.New("db down")}, quietLogger())
	if got := d.FanOutToSubscribers(context.Background(), "author", domain.EventNewPost, nil); got != 0 {
		t.Fatalf("expected no attempts, got %d", got)
	}
}

func TestBroadcastToAll(t *testing.T) {
	groups := &fakeGroups{}
	d := New(presence.NewMemoryRegistry(), groups, nil, quietLogger())
	d.BroadcastToAll("maintenance", map[string]string{"at": "now"})
	if groups.all != 1 {
		t.Fatalf("expected one broadcast, got %d", groups.all)
	}
}

type slowFollowers struct {
	release chan struct{}
}

func (s slowFollowers) ListFollowers(ctx context.Context, _ string) ([]string, error) {
	select {
	case <-s.release:
		return []string{"f1"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestNotifySubscribersDoesNotBlockCaller(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	ch := &recordingChannel{id: "c"}
	reg.Register("f1", ch)
	src := slowFollowers{release: make(chan struct{})}
	d := New(reg, &fakeGroups{}, src, quietLogger(), WithTimeout(time.Second))

	returned := make(chan struct{})
	go func() {
		d.NotifySubscribers("author", domain.EventProfileUpdated, nil)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("NotifySubscribers blocked on subscriber loading")
	}

	close(src.release)
	d.Wait()
	if len(ch.messages()) != 1 {
		t.Fatalf("expected detached delivery to complete")
	}
}

func TestNotifyRecoversFromPanics(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	reg.Register("u1", &recordingChannel{id: "c", panic: true})
	d := New(reg, &fakeGroups{}, nil, quietLogger())

	d.Notify("u1", domain.EventHealthAlert, nil)
	d.Wait()
}

func TestEncodeFailureIsSwallowed(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	ch := &recordingChannel{id: "c"}
	reg.Register("u1", ch)
	d := New(reg, &fakeGroups{}, nil, quietLogger())

	d.SendToIdentity("u1", "bad", make(chan int))
	if len(ch.messages()) != 0 {
		t.Fatal("unencodable payload must not be delivered")
	}
}

func TestFanOutSlowSubscriberDoesNotStarveOthers(t *testing.T) {
	reg := presence.NewMemoryRegistry()
	slow := &slowChannel{recordingChannel: recordingChannel{id: "slow"}, delay: 120 * time.Millisecond}
	reg.Register("f0", slow)
	fast := make([]*recordingChannel, 3)
	ids := []string{"f0"}
	for i := range fast {
		fast[i] = &recordingChannel{id: "fast"}
		id := string(rune('a' + i))
		reg.Register(id, fast[i])
		ids = append(ids, id)
	}
	d := New(reg, &fakeGroups{}, stubFollowers{ids: ids}, quietLogger(), WithTimeout(100*time.Millisecond))

	d.NotifySubscribers("author", domain.EventNewPost, map[string]string{"postId": "p1"})
	d.Wait()

	if got := len(slow.messages()); got != 1 {
		t.Fatalf("expected slow subscriber to receive the event, got %d", got)
	}
	for i, ch := range fast {
		if got := len(ch.messages()); got != 1 {
			t.Fatalf("subscriber %d: expected one message after a slow peer, got %d", i, got)
		}
	}
}
