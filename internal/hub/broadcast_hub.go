package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	EventInitialKPIs  EventType = "initial_kpis"
	EventKPIUpdate    EventType = "kpi_update"
	EventRecentLogs   EventType = "recent_logs"
	EventNewLog       EventType = "new_log"
	EventAnomalyAlert EventType = "anomaly_alert"
	EventPong         EventType = "pong"
)

// Event is the envelope delivered to every subscriber.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscription is one live observer channel. Events are delivered in
// publish order; when the bounded queue overflows the oldest event is
// dropped so a slow consumer sees the freshest state.
type Subscription struct {
	id       string
	events   chan Event
	mu       sync.Mutex
	closed   bool
	lastSeen time.Time
}

func (s *Subscription) Id() string {
	return s.id
}

// Events is the subscriber's receive channel. It is closed on
// unsubscribe or heartbeat eviction; re-subscribing is the only restart.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Heartbeat records subscriber liveness.
func (s *Subscription) Heartbeat() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Subscription) push(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.events <- event:
			return
		default:
		}
		// queue full: drop the oldest event and retry
		select {
		case <-s.events:
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *Subscription) staleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(cutoff)
}

// BroadcastHub fans events out to live subscriptions. Publishing to a
// slow or disconnected subscriber never blocks publishing to others.
type BroadcastHub struct {
	mu               sync.RWMutex
	subscriptions    map[string]*Subscription
	queueSize        int
	heartbeatTimeout time.Duration
	done             chan struct{}
	logger           *zap.Logger
}

func NewBroadcastHub(queueSize int, heartbeatTimeout time.Duration, logger *zap.Logger) *BroadcastHub {
	if queueSize <= 0 {
		queueSize = 64
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 30 * time.Second
	}
	h := &BroadcastHub{
		subscriptions:    make(map[string]*Subscription),
		queueSize:        queueSize,
		heartbeatTimeout: heartbeatTimeout,
		done:             make(chan struct{}),
		logger:           logger,
	}
	go h.evictStale()
	return h
}

func (h *BroadcastHub) Subscribe() *Subscription {
	sub := &Subscription{
		id:       uuid.NewString(),
		events:   make(chan Event, h.queueSize),
		lastSeen: time.Now(),
	}
	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	total := len(h.subscriptions)
	h.mu.Unlock()
	h.logger.Info("Subscriber connected",
		zap.String("subscription_id", sub.id),
		zap.Int("total_subscriptions", total),
	)
	return sub
}

func (h *BroadcastHub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, found := h.subscriptions[sub.id]
	delete(h.subscriptions, sub.id)
	h.mu.Unlock()
	if found {
		sub.close()
		h.logger.Info("Subscriber removed", zap.String("subscription_id", sub.id))
	}
}

// Publish delivers the event to every current subscription in FIFO order
// per subscription. There is no ordering guarantee across subscriptions.
func (h *BroadcastHub) Publish(eventType EventType, payload interface{}) {
	event := Event{Type: eventType, Data: payload, Timestamp: time.Now().UTC()}
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.push(event)
	}
}

// Send delivers an event to a single subscription, used for request
// scoped replies such as pong and recent_logs.
func (h *BroadcastHub) Send(sub *Subscription, eventType EventType, payload interface{}) {
	sub.push(Event{Type: eventType, Data: payload, Timestamp: time.Now().UTC()})
}

func (h *BroadcastHub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Shutdown closes every subscription and stops the eviction loop.
func (h *BroadcastHub) Shutdown() {
	close(h.done)
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		subs = append(subs, sub)
	}
	h.subscriptions = make(map[string]*Subscription)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

func (h *BroadcastHub) evictStale() {
	ticker := time.NewTicker(h.heartbeatTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.heartbeatTimeout)
			h.mu.Lock()
			var stale []*Subscription
			for id, sub := range h.subscriptions {
				if sub.staleSince(cutoff) {
					stale = append(stale, sub)
					delete(h.subscriptions, id)
				}
			}
			h.mu.Unlock()
			for _, sub := range stale {
				sub.close()
				h.logger.Info("Evicted stale subscriber",
					zap.String("subscription_id", sub.id),
					zap.Duration("heartbeat_timeout", h.heartbeatTimeout),
				)
			}
		}
	}
}
