// Package events attaches native listeners that forward DOM events to the
// remote runtime, keyed by listener ids the runtime chooses.
package events

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/codec"
	"github.com/xkilldash9x/polyplug/internal/dom"
	"github.com/xkilldash9x/polyplug/internal/locator"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

// RebindPolicy decides what happens when a listener id is registered again
// while its previous registration is still live.
type RebindPolicy string

const (
	// RebindOrphan overwrites the registry entry and leaves the previous
	// native listener attached. It can no longer be removed.
	RebindOrphan RebindPolicy = "orphan"
	// RebindReplace detaches the previous listener before attaching anew.
	RebindReplace RebindPolicy = "replace"
	// RebindReject refuses the registration with ErrDuplicateListener.
	RebindReject RebindPolicy = "reject"
)

// ParseRebindPolicy accepts the policy names case-insensitively. The empty
// string selects RebindOrphan.
func ParseRebindPolicy(s string) (RebindPolicy, error) {
	switch p := RebindPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RebindOrphan, nil
	case RebindOrphan, RebindReplace, RebindReject:
		return p, nil
	}
	return "", fmt.Errorf("unknown rebind policy %q (want orphan, replace or reject)", s)
}

// ErrDuplicateListener is returned under RebindReject.
var ErrDuplicateListener = errors.New("listener id already registered")

// Bridge registers and removes forwarding listeners.
type Bridge struct {
	logger   *zap.Logger
	locator  *locator.Locator
	codec    *codec.Codec
	registry *Registry
	bus      *signals.Bus
	policy   RebindPolicy
}

// NewBridge wires a bridge. A nil registry gets a fresh one.
func NewBridge(loc *locator.Locator, c *codec.Codec, registry *Registry, bus *signals.Bus, policy RebindPolicy, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if policy == "" {
		policy = RebindOrphan
	}
	return &Bridge{
		logger:   logger.Named("events"),
		locator:  loc,
		codec:    c,
		registry: registry,
		bus:      bus,
		policy:   policy,
	}
}

// Registry exposes the bridge's listener registry.
func (b *Bridge) Registry() *Registry { return b.registry }

// RegisterEvent attaches one forwarding listener for eventType to every
// element q resolves to and records it under listenerID.
func (b *Bridge) RegisterEvent(q *schemas.Query, eventType, listenerID string) error {
	nodes, err := b.locator.Resolve(q)
	if err != nil {
		return fmt.Errorf("registerEvent %q: %w", listenerID, err)
	}

	if prev, ok := b.registry.Get(listenerID); ok {
		switch b.policy {
		case RebindReject:
			return fmt.Errorf("registerEvent %q: %w", listenerID, ErrDuplicateListener)
		case RebindReplace:
			detach(prev, prev.Nodes)
			b.logger.Debug("Replaced listener", zap.String("listener", listenerID))
		default:
			b.logger.Warn("Listener id re-registered; previous listener stays attached and can no longer be removed",
				zap.String("listener", listenerID),
				zap.String("event_type", prev.EventType),
				zap.Int("orphaned_nodes", len(prev.Nodes)),
			)
		}
	}

	listener := dom.NewListener(func(ev dom.Event) {
		b.forward(ev, listenerID)
	})
	for _, n := range nodes {
		n.AddEventListener(eventType, listener)
	}
	b.registry.Put(listenerID, &Registration{Listener: listener, EventType: eventType, Nodes: nodes})

	b.logger.Debug("Registered listener",
		zap.String("listener", listenerID),
		zap.String("event_type", eventType),
		zap.Int("nodes", len(nodes)),
	)
	return nil
}

// RemoveEvent detaches the listener stored under listenerID from every
// element q resolves to. Unknown ids are ignored.
func (b *Bridge) RemoveEvent(q *schemas.Query, eventType, listenerID string) error {
	nodes, err := b.locator.Resolve(q)
	if err != nil {
		return fmt.Errorf("removeEvent %q: %w", listenerID, err)
	}

	reg, ok := b.registry.Get(listenerID)
	if !ok {
		b.logger.Debug("Ignoring removal of unregistered listener", zap.String("listener", listenerID))
		return nil
	}
	for _, n := range nodes {
		n.RemoveEventListener(eventType, reg.Listener)
	}
	b.registry.Delete(listenerID)

	b.logger.Debug("Removed listener", zap.String("listener", listenerID), zap.Int("nodes", len(nodes)))
	return nil
}

func detach(reg *Registration, nodes []dom.Node) {
	for _, n := range nodes {
		n.RemoveEventListener(reg.EventType, reg.Listener)
	}
}

// forward runs when a native listener fires. Failures surface as error
// signals since no inbound message is in flight.
func (b *Bridge) forward(ev dom.Event, listenerID string) {
	target, err := b.codec.Encode(ev.Target)
	if err != nil {
		b.fail(listenerID, err)
		return
	}
	payload, err := json.Marshal(&schemas.EventPayload{Type: ev.Type, Target: target, Listener: listenerID})
	if err != nil {
		b.fail(listenerID, err)
		return
	}
	b.bus.Publish(signals.Event, string(payload))
}

func (b *Bridge) fail(listenerID string, err error) {
	b.logger.Error("Failed to forward event", zap.String("listener", listenerID), zap.Error(err))
	context, _ := json.Marshal(&schemas.ErrorContext{Type: schemas.ErrorTypeHandlerFault, Msg: err.Error()})
	b.bus.PublishError(context)
}
