// Package router parses inbound messages and dispatches them to the DOM
// engine, the event bridge or the output signals.
package router

import (
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/codec"
	"github.com/xkilldash9x/polyplug/internal/events"
	"github.com/xkilldash9x/polyplug/internal/locator"
	"github.com/xkilldash9x/polyplug/internal/reconcile"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

// Router holds no state between calls; callers must not invoke
// ReceiveMessage concurrently.
type Router struct {
	logger     *zap.Logger
	locator    *locator.Locator
	codec      *codec.Codec
	reconciler *reconcile.Reconciler
	events     *events.Bridge
	bus        *signals.Bus
}

func New(loc *locator.Locator, c *codec.Codec, rec *reconcile.Reconciler, ev *events.Bridge, bus *signals.Bus, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		logger:     logger.Named("router"),
		locator:    loc,
		codec:      c,
		reconciler: rec,
		events:     ev,
		bus:        bus,
	}
}

// ReceiveMessage handles one raw JSON message. It never panics and never
// returns an error: malformed input and handler faults are published on the
// error channel.
//
// Only the type is read up front. Each handler decodes the fields it needs,
// so unknown types are dropped whatever else they carry.
func (r *Router) ReceiveMessage(raw string) {
	env, err := schemas.ParseEnvelope([]byte(raw))
	if err != nil {
		r.logger.Debug("Dropping malformed message", zap.Error(err))
		r.publishFault(schemas.ErrorTypeMalformedMessage, err)
		return
	}

	msgType := env.Type()
	if err := r.dispatch(msgType, env); err != nil {
		r.logger.Debug("Handler failed", zap.String("type", string(msgType)), zap.Error(err))
		r.publishFault(schemas.ErrorTypeHandlerFault, err)
	}
}

func (r *Router) dispatch(msgType schemas.MessageType, env schemas.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerFault{Type: msgType, Panic: p}
		}
	}()

	switch msgType {
	case schemas.MessageUpdateDOM:
		return r.updateDOM(env)
	case schemas.MessageRegisterEvent:
		q, eventType, listener, err := decodeEventFields(env)
		if err != nil {
			return fmt.Errorf("registerEvent: %w", err)
		}
		return r.events.RegisterEvent(q, eventType, listener)
	case schemas.MessageRemoveEvent:
		q, eventType, listener, err := decodeEventFields(env)
		if err != nil {
			return fmt.Errorf("removeEvent: %w", err)
		}
		return r.events.RemoveEvent(q, eventType, listener)
	case schemas.MessageStdout:
		r.bus.Publish(signals.Stdout, env.Text("content"))
	case schemas.MessageStderr:
		r.bus.Publish(signals.Stderr, env.Text("content"))
	case schemas.MessageError:
		r.bus.PublishError(env.Raw("context"))
	default:
		r.logger.Debug("Ignoring unknown message type", zap.String("type", string(msgType)))
	}
	return nil
}

func decodeEventFields(env schemas.Envelope) (q *schemas.Query, eventType, listener string, err error) {
	if err = env.Decode("query", &q); err != nil {
		return nil, "", "", err
	}
	if err = env.Decode("eventType", &eventType); err != nil {
		return nil, "", "", err
	}
	if err = env.Decode("listener", &listener); err != nil {
		return nil, "", "", err
	}
	return q, eventType, listener, nil
}

func (r *Router) updateDOM(env schemas.Envelope) error {
	var q *schemas.Query
	if err := env.Decode("query", &q); err != nil {
		return fmt.Errorf("updateDOM: %w", err)
	}
	nodes, err := r.locator.Resolve(q)
	if err != nil {
		return fmt.Errorf("updateDOM: %w", err)
	}
	var target *schemas.PortableNode
	if err := env.Decode("target", &target); err != nil {
		return fmt.Errorf("updateDOM: %w", err)
	}
	if target == nil {
		return fmt.Errorf("updateDOM: missing target")
	}
	if len(nodes) != 1 {
		r.logger.Debug("Ignoring updateDOM with ambiguous target",
			zap.Stringer("query", q),
			zap.Int("matches", len(nodes)),
		)
		return nil
	}
	r.reconciler.Mutate(nodes[0], r.codec.Decode(target))
	return nil
}

func (r *Router) publishFault(kind string, err error) {
	context, mErr := json.Marshal(&schemas.ErrorContext{Type: kind, Msg: err.Error()})
	if mErr != nil {
		r.logger.Error("Failed to marshal error context", zap.Error(mErr))
		context = nil
	}
	r.bus.PublishError(context)
}
