// Package signals carries the bridge's output: stdout and stderr text, error
// contexts, and event forwards bound for the remote runtime.
package signals

import (
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Kind names an output channel.
type Kind string

const (
	Stdout Kind = "stdout"
	Stderr Kind = "stderr"
	Error  Kind = "error"
	// Event carries an event-forward payload as a JSON string.
	Event Kind = "event"
)

// AllKinds lists every output channel.
var AllKinds = []Kind{Stdout, Stderr, Error, Event}

// Signal is one output occurrence. Payload is a string for Stdout, Stderr and
// Event, and a json.RawMessage for Error.
type Signal struct {
	ID        string
	Timestamp time.Time
	Kind      Kind
	Payload   interface{}
}

// Text returns the payload as text. Error payloads are returned as their JSON.
func (s Signal) Text() string {
	switch p := s.Payload.(type) {
	case string:
		return p
	case json.RawMessage:
		return string(p)
	}
	return ""
}

// Handler receives signals synchronously on the publishing goroutine.
type Handler func(Signal)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans signals out to subscribers. Delivery is synchronous and in
// subscription order, so a signal is observed before Publish returns.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[Kind][]subscription
	nextID      uint64
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:      logger.Named("signals"),
		subscribers: make(map[Kind][]subscription),
	}
}

// Publish delivers payload to every subscriber of kind.
func (b *Bus) Publish(kind Kind, payload interface{}) {
	sig := Signal{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Payload:   payload,
	}

	b.logger.Debug("Publishing signal", zap.String("kind", string(kind)), zap.String("id", sig.ID))

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[kind]))
	copy(subs, b.subscribers[kind])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(sig)
	}
}

// PublishError publishes an error signal with a JSON context. Nil context is
// published as JSON null.
func (b *Bus) PublishError(context json.RawMessage) {
	if len(context) == 0 {
		context = json.RawMessage("null")
	}
	b.Publish(Error, context)
}

// Subscribe registers fn for the given kinds, or for every kind when none are
// given. The returned function removes the subscription.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) func() {
	if fn == nil {
		panic("signals: nil handler")
	}
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	subscribed := make([]Kind, len(kinds))
	copy(subscribed, kinds)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, kind := range subscribed {
		b.subscribers[kind] = append(b.subscribers[kind], subscription{id: id, handler: fn})
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, kind := range subscribed {
				subs := b.subscribers[kind]
				for i, sub := range subs {
					if sub.id == id {
						b.subscribers[kind] = append(subs[:i:i], subs[i+1:]...)
						break
					}
				}
				if len(b.subscribers[kind]) == 0 {
					delete(b.subscribers, kind)
				}
			}
		})
	}
}

// Recorder collects signals, mostly for tests and batch tools.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

// Record is a Handler.
func (r *Recorder) Record(s Signal) {
	r.mu.Lock()
	r.signals = append(r.signals, s)
	r.mu.Unlock()
}

// Signals returns a copy of everything recorded so far.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal(nil), r.signals...)
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.signals = nil
	r.mu.Unlock()
}
