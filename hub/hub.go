// Package hub fans parsed samples out to named consumers. Each
// subscription picks a delivery policy: blocking for consumers that
// must see every sample, latest-wins for consumers that only need the
// freshest one.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"sealink/telemetry"
)

// Policy selects how a subscription receives samples.
type Policy string

const (
	// Blocking queues every sample; the publisher waits when the queue
	// is full. Reserved for the recorder, which must not lose data.
	Blocking Policy = "blocking"
	// LatestWins keeps only the most recent undelivered sample. A
	// consumer still busy with the previous sample sees the newest one
	// once free; intermediate ones are dropped and counted.
	LatestWins Policy = "latest-wins"
)

// ErrClosed is returned by Next once a subscription is closed and
// drained.
var ErrClosed = errors.New("subscription closed")

// Hub routes published samples to subscriptions.
type Hub struct {
	logger    *slog.Logger
	queueSize int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	published atomic.Int64
}

// New creates a hub. queueSize bounds each blocking subscription's
// queue.
func New(queueSize int, logger *slog.Logger) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Hub{
		logger:    logger,
		queueSize: queueSize,
		subs:      make(map[string]*Subscription),
	}
}

// Subscribe registers a named consumer. Names are unique.
func (h *Hub) Subscribe(name string, policy Policy) (*Subscription, error) {
	if policy != Blocking && policy != LatestWins {
		return nil, fmt.Errorf("unknown policy %q", policy)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("hub is closed")
	}
	if _, exists := h.subs[name]; exists {
		return nil, fmt.Errorf("consumer %q already subscribed", name)
	}

	s := &Subscription{
		hub:    h,
		name:   name,
		policy: policy,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if policy == Blocking {
		s.queue = make(chan telemetry.Sample, h.queueSize)
	}
	h.subs[name] = s

	h.logger.Debug("Consumer subscribed", "consumer", name, "policy", string(policy))
	return s, nil
}

// Unsubscribe detaches and closes a named subscription.
func (h *Hub) Unsubscribe(name string) {
	h.mu.Lock()
	s, ok := h.subs[name]
	if ok {
		delete(h.subs, name)
	}
	h.mu.Unlock()

	if ok {
		s.markClosed()
	}
}

// Publish delivers a sample to every subscription. Mailbox deliveries
// go first so a full blocking queue stalls only the publisher, never a
// latest-wins consumer's view of this sample.
func (h *Hub) Publish(sample telemetry.Sample) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	h.published.Add(1)

	for _, s := range subs {
		if s.policy == LatestWins {
			s.publishLatest(sample)
		}
	}
	for _, s := range subs {
		if s.policy == Blocking {
			s.publishBlocking(sample)
		}
	}
}

// Published returns the number of samples accepted for distribution.
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Close terminates every subscription. Blocking consumers can still
// drain queued samples afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.markClosed()
	}
}

// SubscriptionStats is a point-in-time snapshot of one consumer.
type SubscriptionStats struct {
	Name      string `json:"name"`
	Policy    string `json:"policy"`
	Delivered int64  `json:"delivered"`
	Dropped   int64  `json:"dropped"`
	Pending   int    `json:"pending"`
}

// Stats returns per-consumer snapshots sorted by name.
func (h *Hub) Stats() []SubscriptionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make([]SubscriptionStats, 0, len(h.subs))
	for _, s := range h.subs {
		stats = append(stats, s.stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Subscription is one consumer's view of the sample stream.
type Subscription struct {
	hub    *Hub
	name   string
	policy Policy

	// Blocking delivery.
	queue chan telemetry.Sample

	// Latest-wins delivery: a single-slot mailbox.
	slotMu sync.Mutex
	slot   *telemetry.Sample
	notify chan struct{}

	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Int64
	dropped   atomic.Int64
}

// Name returns the consumer name.
func (s *Subscription) Name() string { return s.name }

// Policy returns the delivery policy.
func (s *Subscription) Policy() Policy { return s.policy }

// Next blocks until a sample is available, the context is cancelled, or
// the subscription is closed and drained.
func (s *Subscription) Next(ctx context.Context) (telemetry.Sample, error) {
	if s.policy == Blocking {
		return s.nextBlocking(ctx)
	}
	return s.nextLatest(ctx)
}

// Close detaches the consumer from the hub.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.name)
}

func (s *Subscription) publishBlocking(sample telemetry.Sample) {
	select {
	case s.queue <- sample:
	case <-s.done:
	}
}

func (s *Subscription) publishLatest(sample telemetry.Sample) {
	s.slotMu.Lock()
	if s.slot != nil {
		s.dropped.Add(1)
	}
	pending := sample
	s.slot = &pending
	s.slotMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) nextBlocking(ctx context.Context) (telemetry.Sample, error) {
	// Queued samples drain even after close; losing them would break
	// the recorder's no-loss contract.
	select {
	case sample := <-s.queue:
		s.delivered.Add(1)
		return sample, nil
	default:
	}

	select {
	case sample := <-s.queue:
		s.delivered.Add(1)
		return sample, nil
	case <-ctx.Done():
		return telemetry.Sample{}, ctx.Err()
	case <-s.done:
		select {
		case sample := <-s.queue:
			s.delivered.Add(1)
			return sample, nil
		default:
			return telemetry.Sample{}, ErrClosed
		}
	}
}

func (s *Subscription) nextLatest(ctx context.Context) (telemetry.Sample, error) {
	for {
		s.slotMu.Lock()
		if s.slot != nil {
			sample := *s.slot
			s.slot = nil
			s.slotMu.Unlock()
			s.delivered.Add(1)
			return sample, nil
		}
		s.slotMu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return telemetry.Sample{}, ctx.Err()
		case <-s.done:
			s.slotMu.Lock()
			if s.slot != nil {
				sample := *s.slot
				s.slot = nil
				s.slotMu.Unlock()
				s.delivered.Add(1)
				return sample, nil
			}
			s.slotMu.Unlock()
			return telemetry.Sample{}, ErrClosed
		}
	}
}

func (s *Subscription) markClosed() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) stats() SubscriptionStats {
	st := SubscriptionStats{
		Name:      s.name,
		Policy:    string(s.policy),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
	}
	if s.policy == Blocking {
		st.Pending = len(s.queue)
	} else {
		s.slotMu.Lock()
		if s.slot != nil {
			st.Pending = 1
		}
		s.slotMu.Unlock()
	}
	return st
}
