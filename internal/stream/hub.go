// Package stream fans dashboard snapshots and alert notifications out to
// any number of subscribers.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockwatch/internal/models"
	"stockwatch/internal/notify"
)

var errHubFull = errors.New("stream: event queue full")

// Topic names an event stream.
type Topic string

const (
	TopicSnapshot Topic = "snapshot"
	TopicAlert    Topic = "alert"
)

// Event is one message delivered to subscribers.
type Event struct {
	Topic        Topic                `json:"topic"`
	Snapshot     *models.Snapshot     `json:"snapshot,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 16,
	}
}

// Hub distributes events from the dashboard and the alert watcher to
// subscribers. A new snapshot subscriber immediately receives the latest
// snapshot. Snapshots supersede each other, so a slow snapshot subscriber
// loses the oldest queued snapshot instead of the newest.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	latest      *models.Snapshot
	events      chan Event
	done        chan struct{}
	started     bool
	stopped     bool

	// Metrics
	metricsMu       sync.RWMutex
	eventsReceived  uint64
	eventsDelivered uint64
	eventsDropped   uint64
}

// Subscriber is a channel subscription with metadata.
type Subscriber struct {
	ID        string
	Topics    []Topic
	CreatedAt time.Time

	ch      chan Event
	mu      sync.Mutex
	dropped int
	closed  bool
}

// Events returns the receive side of the subscription. It is closed when
// the subscriber is removed or the hub stops.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber missed.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with a custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		subscribers: make(map[Topic][]*Subscriber),
		events:      make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.done:
			return
		case ev := <-h.events:
			h.metricsMu.Lock()
			h.eventsReceived++
			h.metricsMu.Unlock()
			h.broadcast(ev)
		}
	}
}

// Stop ends the loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.done)

	seen := make(map[*Subscriber]bool)
	for topic, subs := range h.subscribers {
		for _, sub := range subs {
			if !seen[sub] {
				sub.close()
				seen[sub] = true
			}
		}
		delete(h.subscribers, topic)
	}
}

// Subscribe registers a subscriber for the given topics (all topics when
// none are named).
func (h *Hub) Subscribe(id string, topics ...Topic) *Subscriber {
	if len(topics) == 0 {
		topics = []Topic{TopicSnapshot, TopicAlert}
	}
	sub := &Subscriber{
		ID:        id,
		Topics:    topics,
		CreatedAt: time.Now(),
		ch:        make(chan Event, h.config.SubscriberBufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		sub.close()
		return sub
	}
	for _, t := range topics {
		h.subscribers[t] = append(h.subscribers[t], sub)
		if t == TopicSnapshot && h.latest != nil {
			sub.ch <- Event{Topic: TopicSnapshot, Snapshot: h.latest}
		}
	}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range sub.Topics {
		subs := h.subscribers[t]
		for i, s := range subs {
			if s == sub {
				h.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subscribers[t]) == 0 {
			delete(h.subscribers, t)
		}
	}
	sub.close()
}

// Publish queues a snapshot for distribution and records it as the latest.
// It never blocks; when the queue is full the snapshot is dropped and
// counted, and the next one supersedes it anyway.
func (h *Hub) Publish(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	h.mu.Lock()
	h.latest = snap
	h.mu.Unlock()
	h.enqueue(Event{Topic: TopicSnapshot, Snapshot: snap})
}

// Latest returns the most recently published snapshot or nil.
func (h *Hub) Latest() *models.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

func (h *Hub) enqueue(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
		return false
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	subs := append([]*Subscriber(nil), h.subscribers[ev.Topic]...)
	h.mu.RUnlock()

	for _, sub := range subs {
		delivered := sub.offer(ev, ev.Topic == TopicSnapshot)
		h.metricsMu.Lock()
		if delivered {
			h.eventsDelivered++
		} else {
			h.eventsDropped++
		}
		h.metricsMu.Unlock()
	}
}

// offer sends without blocking. With replace set, a full buffer gives up
// its oldest event to make room.
func (s *Subscriber) offer(ev Event, replace bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
	}
	s.dropped++
	if !replace {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Name implements notify.NotificationChannel.
func (h *Hub) Name() string { return "stream" }

// IsEnabled implements notify.NotificationChannel.
func (h *Hub) IsEnabled() bool { return true }

// Send implements notify.NotificationChannel by broadcasting the
// notification on the alert topic.
func (h *Hub) Send(_ context.Context, n notify.Notification) error {
	if !h.enqueue(Event{Topic: TopicAlert, Notification: &n}) {
		return errHubFull
	}
	return nil
}

// SubscriberCount returns the number of distinct subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Subscriber]bool)
	for _, subs := range h.subscribers {
		for _, s := range subs {
			seen[s] = true
		}
	}
	return len(seen)
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.RLock()
	m := HubMetrics{
		EventsReceived:  h.eventsReceived,
		EventsDelivered: h.eventsDelivered,
		EventsDropped:   h.eventsDropped,
	}
	h.metricsMu.RUnlock()
	m.Subscribers = h.SubscriberCount()
	return m
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsDropped   uint64 `json:"events_dropped"`
	Subscribers     int    `json:"subscribers"`
}

// IsStarted returns whether the distribution loop is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started && !h.stopped
}
