// Package fanout broadcasts events to live observers.
//
// Every inbound transport message and every synthetic state-change
// event passes through a single Broker owned by the process and
// injected into the gateway and liveness monitor - there is no ambient
// singleton. Subscribers are keyed by an ephemeral connection id
// (typically a websocket connection) and receive events synchronously
// in registration order. A panicking subscriber is recovered and
// logged; it never blocks delivery to the rest.
package fanout

import (
	"sync"
)

// Event is a single broadcast message.
type Event struct {
	// Topic identifies the source, e.g. "device/lobby-display/status".
	Topic string

	// Payload is the raw event body (JSON for recognised messages,
	// raw bytes otherwise).
	Payload []byte
}

// Callback receives a broadcast event. It runs synchronously on the
// publisher's goroutine and should return quickly.
type Callback func(event Event)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// subscriber pairs a callback with its registration sequence number.
type subscriber struct {
	seq      uint64
	callback Callback
}

// Broker is the subscriber registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Broker struct {
	mu      sync.RWMutex
	nextSeq uint64
	subs    map[string]subscriber

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{
		subs:   make(map[string]subscriber),
		logger: noopLogger{},
	}
}

// SetLogger sets a logger for subscriber panics.
// If not set, panics are recovered silently.
func (b *Broker) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	if logger != nil {
		b.logger = logger
	}
}

// AddSubscriber registers a callback under a connection id.
// Re-registering an existing id replaces its callback and moves it to
// the end of the delivery order.
func (b *Broker) AddSubscriber(id string, callback Callback) {
	if callback == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	b.subs[id] = subscriber{seq: b.nextSeq, callback: callback}
}

// RemoveSubscriber deregisters a connection id.
// Removing an unknown id is a no-op.
func (b *Broker) RemoveSubscriber(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers an event to every subscriber in registration order.
//
// Delivery is synchronous. A panicking callback is recovered, logged,
// and does not stop delivery to the remaining subscribers.
func (b *Broker) Publish(topic string, payload []byte) {
	event := Event{Topic: topic, Payload: payload}

	// Snapshot under read lock so callbacks can add/remove subscribers.
	b.mu.RLock()
	snapshot := make([]subscriber, 0, len(b.subs))
	ids := make(map[uint64]string, len(b.subs))
	for id, sub := range b.subs {
		snapshot = append(snapshot, sub)
		ids[sub.seq] = id
	}
	b.mu.RUnlock()

	sortBySeq(snapshot)

	for _, sub := range snapshot {
		b.deliver(ids[sub.seq], sub.callback, event)
	}
}

// deliver invokes one callback with panic recovery.
func (b *Broker) deliver(id string, callback Callback, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.loggerMu.RLock()
			logger := b.logger
			b.loggerMu.RUnlock()
			logger.Error("fan-out subscriber panic recovered",
				"subscriber_id", id,
				"topic", event.Topic,
				"panic", r,
			)
		}
	}()

	callback(event)
}

// sortBySeq orders subscribers by registration sequence (insertion sort;
// subscriber counts are small - one per dashboard connection).
func sortBySeq(subs []subscriber) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j].seq < subs[j-1].seq; j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
}
