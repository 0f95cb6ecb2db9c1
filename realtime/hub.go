// ABOUTME: In-process fan-out of change events to scoped subscriptions
// ABOUTME: One active handler per channel; each subscription delivers in order on its own goroutine
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Predicate selects the events a subscription cares about.
type Predicate func(Event) bool

// Handler receives matching events. Its context is cancelled on Unsubscribe.
type Handler func(ctx context.Context, ev Event)

// Hub delivers published events to subscriptions. Delivery never blocks the publisher:
// each subscription buffers events and drains them in publish order.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe registers handle for events matching match under channel. A handler
// already registered on the same channel is unsubscribed first, so at most one is
// active per channel. The caller owns the returned handle and must release it.
func (h *Hub) Subscribe(channel string, match Predicate, handle Handler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		hub:     h,
		channel: channel,
		match:   match,
		handle:  handle,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	sub.active.Store(true)

	h.mu.Lock()
	prev := h.subs[channel]
	h.subs[channel] = sub
	h.mu.Unlock()

	if prev != nil {
		prev.stop()
		h.logger.Debug("replaced subscription", zap.String("channel", channel))
	}

	go sub.run(h.logger)
	return sub
}

// Publish hands ev to every active subscription whose predicate matches.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if sub.match == nil || sub.match(ev) {
			sub.enqueue(ev)
		}
	}
	return nil
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close releases every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	hub     *Hub
	channel string
	match   Predicate
	handle  Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
	done  chan struct{}

	active   atomic.Bool
	stopOnce sync.Once
}

// Channel returns the channel the subscription was registered under.
func (s *Subscription) Channel() string { return s.channel }

// Active reports whether the subscription still delivers events.
func (s *Subscription) Active() bool { return s.active.Load() }

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe stops delivery and removes the handle from its hub. It is safe to call
// more than once and from inside the handler.
func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	if s.hub.subs[s.channel] == s {
		delete(s.hub.subs, s.channel)
	}
	s.hub.mu.Unlock()
	s.stop()
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		s.active.Store(false)
		s.cancel()
	})
}

func (s *Subscription) enqueue(ev Event) {
	if !s.Active() {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(logger *zap.Logger) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				if !s.Active() {
					return
				}
				s.deliver(logger, ev)
			}
		}
	}
}

func (s *Subscription) deliver(logger *zap.Logger, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("realtime handler panicked",
				zap.String("channel", s.channel),
				zap.String("table", string(ev.Table)),
				zap.Any("panic", r),
			)
		}
	}()
	s.handle(s.ctx, ev)
}
