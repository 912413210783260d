// Package notification pushes status and queue frames to live subscribers.
package notification

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukeula/internal/app/playback"
	"github.com/osa030/jukeula/internal/app/songlist"
)

// SendTimeout bounds a single write to one subscriber. Streams apply it as
// their write deadline.
const SendTimeout = 500 * time.Millisecond

// subscriberBuffer is how many frames may wait for a slow subscriber before
// it is dropped.
const subscriberBuffer = 16

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

type subscription struct {
	id     string
	stream Stream
	frames chan *Notification
	done   chan struct{}
}

// Manager manages notification subscriptions and broadcasting. Broadcast
// never waits for a subscriber: each one has a buffered queue drained by its
// own writer goroutine.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    atomic.Uint64
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	sub := &subscription{
		id:     uuid.New().String(),
		stream: stream,
		frames: make(chan *Notification, subscriberBuffer),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	total := len(m.subscriptions)
	m.mu.Unlock()

	go m.write(sub)
	zlog.Debug().Msgf("subscriber added: id=%s total=%d", sub.id, total)
	return sub.id
}

// Unsubscribe removes a subscription and stops its writer.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[subscriptionID]
	if ok {
		delete(m.subscriptions, subscriptionID)
	}
	m.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// write delivers queued frames to one subscriber until it is removed or a
// send fails.
func (m *Manager) write(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case n := <-sub.frames:
			if err := sub.stream.Send(n); err != nil {
				zlog.Debug().Msgf("dropping subscriber: id=%s seq=%d error=%v", sub.id, n.SequenceNo, err)
				m.Unsubscribe(sub.id)
				return
			}
		}
	}
}

// Broadcast queues a notification for every subscriber and returns at once.
// A subscriber whose queue is full is dropped.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.sequenceNo.Add(1)

	var full []string
	m.mu.RLock()
	for id, sub := range m.subscriptions {
		select {
		case sub.frames <- n:
		default:
			full = append(full, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range full {
		zlog.Warn().Msgf("subscriber too slow, dropped: id=%s seq=%d", id, n.SequenceNo)
		m.Unsubscribe(id)
	}
}

// Send writes a notification to one subscriber directly, bypassing its
// queue. It is for replies on the subscriber's own connection and blocks
// for the write.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	n.SequenceNo = m.sequenceNo.Add(1)
	return sub.stream.Send(n)
}

// StatusChanged broadcasts a status frame.
func (m *Manager) StatusChanged(st playback.Status) {
	m.Broadcast(StatusNotification(st))
}

// QueueChanged broadcasts a queue frame.
func (m *Manager) QueueChanged(entries []songlist.Entry) {
	m.Broadcast(QueueNotification(entries))
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions and stops their writers.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[string]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}
