// Package dispatch delivers events to live channels. Delivery is best
// effort: failures are logged and counted, never returned to the caller.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/metrics"
	"github.com/splax/athlink/internal/presence"
)

// DefaultTimeout bounds a detached dispatch.
const DefaultTimeout = 10 * time.Second

// GroupPrefix namespaces per-identity broadcast groups.
const GroupPrefix = "user:"

// Group returns the broadcast group for userID.
func Group(userID string) string { return GroupPrefix + userID }

// Groups delivers to broadcast groups. ws.Hub implements it.
type Groups interface {
	Broadcast(group string, payload []byte) (delivered, failed int)
	BroadcastAll(payload []byte) (delivered, failed int)
}

// SubscriberSource lists the identities subscribed to userID.
type SubscriberSource interface {
	ListFollowers(ctx context.Context, userID string) ([]string, error)
}

// Dispatcher routes events through the presence registry, falling back to
// the identity's broadcast group when no direct channel is known.
type Dispatcher struct {
	registry    presence.Registry
	groups      Groups
	subscribers SubscriberSource
	log         *slog.Logger
	metrics     *metrics.Metrics
	timeout     time.Duration
	now         func() time.Time

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds detached work.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithMetrics counts delivery outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// New constructs a Dispatcher.
func New(registry presence.Registry, groups Groups, subscribers SubscriberSource, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		registry:    registry,
		groups:      groups,
		subscribers: subscribers,
		log:         logger.With("component", "dispatch"),
		timeout:     DefaultTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendToIdentity delivers one event to userID.
func (d *Dispatcher) SendToIdentity(userID, event string, payload any) {
	raw, err := d.encode(event, payload)
	if err != nil {
		d.log.Error("encode event failed", "event", event, "error", err)
		return
	}
	d.deliver(userID, event, raw)
}

// FanOutToSubscribers delivers one event to every subscriber of userID and
// returns the number of delivery attempts made. Every subscriber gets an
// attempt regardless of how long earlier ones took.
func (d *Dispatcher) FanOutToSubscribers(ctx context.Context, userID, event string, payload any) int {
	if d.subscribers == nil {
		return 0
	}
	followers, err := d.subscribers.ListFollowers(ctx, userID)
	if err != nil {
		d.log.Warn("load subscribers failed", "user_id", userID, "event", event, "error", err)
		return 0
	}
	if len(followers) == 0 {
		return 0
	}
	raw, err := d.encode(event, payload)
	if err != nil {
		d.log.Error("encode event failed", "event", event, "error", err)
		return 0
	}
	// ctx bounds the subscriber load only. A slow channel must not cost
	// the followers after it their attempt.
	attempts := 0
	for _, id := range followers {
		d.deliver(id, event, raw)
		attempts++
	}
	return attempts
}

// BroadcastToAll delivers one event to every connected channel.
func (d *Dispatcher) BroadcastToAll(event string, payload any) {
	if d.groups == nil {
		return
	}
	raw, err := d.encode(event, payload)
	if err != nil {
		d.log.Error("encode event failed", "event", event, "error", err)
		return
	}
	delivered, failed := d.groups.BroadcastAll(raw)
	for i := 0; i < delivered; i++ {
		d.metrics.Delivery(event, metrics.OutcomeDelivered)
	}
	for i := 0; i < failed; i++ {
		d.metrics.Delivery(event, metrics.OutcomeFailed)
	}
}

// Notify sends to userID without blocking the caller.
func (d *Dispatcher) Notify(userID, event string, payload any) {
	d.detach(event, func(context.Context) {
		d.SendToIdentity(userID, event, payload)
	})
}

// NotifySubscribers fans out to the subscribers of userID without blocking
// the caller.
func (d *Dispatcher) NotifySubscribers(userID, event string, payload any) {
	d.detach(event, func(ctx context.Context) {
		d.FanOutToSubscribers(ctx, userID, event, payload)
	})
}

// NotifyAll broadcasts without blocking the caller.
func (d *Dispatcher) NotifyAll(event string, payload any) {
	d.detach(event, func(context.Context) {
		d.BroadcastToAll(event, payload)
	})
}

// Wait blocks until all detached work has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) detach(event string, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("dispatch panicked", "event", event, "panic", fmt.Sprint(r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// deliver makes one isolated attempt: a panic or error from a channel is
// contained here so the next attempt still runs.
func (d *Dispatcher) deliver(userID, event string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Delivery(event, metrics.OutcomeFailed)
			d.log.Warn("delivery panicked", "user_id", userID, "event", event, "panic", fmt.Sprint(r))
		}
	}()

	if ch, ok := d.registry.Resolve(userID); ok {
		if err := ch.Send(raw); err != nil {
			d.metrics.Delivery(event, metrics.OutcomeFailed)
			d.log.Warn("delivery failed", "user_id", userID, "event", event, "channel_id", ch.ID(), "error", err)
			if d.registry.UnregisterChannel(userID, ch) {
				ch.Close()
			}
			return
		}
		d.metrics.Delivery(event, metrics.OutcomeDelivered)
		return
	}

	if d.groups == nil {
		d.metrics.Delivery(event, metrics.OutcomeOffline)
		return
	}
	delivered, failed := d.groups.Broadcast(Group(userID), raw)
	switch {
	case delivered == 0 && failed == 0:
		d.metrics.Delivery(event, metrics.OutcomeOffline)
	case failed > 0:
		d.metrics.Delivery(event, metrics.OutcomeFailed)
		d.log.Warn("group delivery failed", "user_id", userID, "event", event, "failed", failed, "delivered", delivered)
	default:
		d.metrics.Delivery(event, metrics.OutcomeGroup)
	}
}

func (d *Dispatcher) encode(event string, payload any) ([]byte, error) {
	return json.Marshal(domain.Envelope{Event: event, Data: payload, SentAt: d.now().UTC()})
}
