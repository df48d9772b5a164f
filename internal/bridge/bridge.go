// Package bridge assembles one independent DOM bridge over a document.
package bridge

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/internal/codec"
	"github.com/xkilldash9x/polyplug/internal/dom"
	"github.com/xkilldash9x/polyplug/internal/events"
	"github.com/xkilldash9x/polyplug/internal/locator"
	"github.com/xkilldash9x/polyplug/internal/reconcile"
	"github.com/xkilldash9x/polyplug/internal/router"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

// Option configures a Bridge.
type Option func(*options)

type options struct {
	logger *zap.Logger
	policy events.RebindPolicy
	bus    *signals.Bus
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRebindPolicy sets how a repeated registerEvent for a live listener id
// is handled. The default is events.RebindOrphan.
func WithRebindPolicy(p events.RebindPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithBus publishes onto an existing bus instead of a private one.
func WithBus(bus *signals.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// Bridge owns every component for one document, including its listener
// registry. Bridges share nothing with each other.
type Bridge struct {
	id     string
	logger *zap.Logger

	codec   *codec.Codec
	locator *locator.Locator
	events  *events.Bridge
	router  *router.Router
	bus     *signals.Bus
}

// New builds a bridge over doc.
func New(doc dom.Document, opts ...Option) *Bridge {
	o := options{policy: events.RebindOrphan}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	id := uuid.New().String()
	logger := o.logger.Named("bridge").With(zap.String("bridge_id", id))
	bus := o.bus
	if bus == nil {
		bus = signals.NewBus(logger)
	}

	c := codec.New(doc, logger)
	loc := locator.New(doc, logger)
	ev := events.NewBridge(loc, c, events.NewRegistry(), bus, o.policy, logger)

	logger.Debug("Bridge created", zap.String("rebind_policy", string(o.policy)))
	return &Bridge{
		id:      id,
		logger:  logger,
		codec:   c,
		locator: loc,
		events:  ev,
		router:  router.New(loc, c, reconcile.New(logger), ev, bus, logger),
		bus:     bus,
	}
}

// ID identifies the bridge in logs.
func (b *Bridge) ID() string { return b.id }

// ReceiveMessage handles one inbound JSON message. Calls must be serialized.
func (b *Bridge) ReceiveMessage(raw string) { b.router.ReceiveMessage(raw) }

// Subscribe observes output signals; with no kinds, every kind.
func (b *Bridge) Subscribe(fn signals.Handler, kinds ...signals.Kind) func() {
	return b.bus.Subscribe(fn, kinds...)
}

func (b *Bridge) Codec() *codec.Codec       { return b.codec }
func (b *Bridge) Locator() *locator.Locator { return b.locator }

// Listeners reports how many listener ids are registered.
func (b *Bridge) Listeners() int { return b.events.Registry().Len() }
