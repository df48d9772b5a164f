//go:build js && wasm

// Command polyplug-wasm runs a bridge inside a browser page. It installs a
// global polyplug object:
//
//	polyplug.receiveMessage(raw)   feed one JSON message to the bridge
//	polyplug.subscribe(kind, fn)   observe "stdout", "stderr", "error", "event" or "*";
//	                               returns an unsubscribe function
package main

import (
	"syscall/js"

	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/internal/bridge"
	"github.com/xkilldash9x/polyplug/internal/config"
	"github.com/xkilldash9x/polyplug/internal/dom/jsdom"
	"github.com/xkilldash9x/polyplug/internal/events"
	"github.com/xkilldash9x/polyplug/internal/observability"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

func main() {
	cfg := config.NewDefaultConfig()
	cfg.Logger.Colors = config.ColorConfig{}
	logger := observability.InitializeLogger(cfg.Logger)

	// The page may set window.polyplugRebindPolicy before loading the module.
	policy := events.RebindOrphan
	if v := js.Global().Get("polyplugRebindPolicy"); v.Type() == js.TypeString {
		p, err := events.ParseRebindPolicy(v.String())
		if err != nil {
			logger.Warn("Ignoring rebind policy", zap.Error(err))
		} else {
			policy = p
		}
	}

	br := bridge.New(jsdom.New(logger), bridge.WithLogger(logger), bridge.WithRebindPolicy(policy))

	api := js.Global().Get("Object").New()
	api.Set("receiveMessage", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		br.ReceiveMessage(args[0].String())
		return nil
	}))
	api.Set("subscribe", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 2 || args[1].Type() != js.TypeFunction {
			// A panic here would take the whole module down.
			logger.Warn("polyplug.subscribe expects (kind, fn)")
			return nil
		}
		return subscribe(br, args[0].String(), args[1])
	}))
	js.Global().Set("polyplug", api)

	logger.Info("polyplug ready", zap.String("bridge_id", br.ID()))
	select {}
}

// subscribe forwards signals of kind to fn. Error contexts arrive as objects,
// everything else as strings.
func subscribe(br *bridge.Bridge, kind string, fn js.Value) js.Func {
	var kinds []signals.Kind
	if kind != "*" && kind != "" {
		kinds = []signals.Kind{signals.Kind(kind)}
	}
	parse := js.Global().Get("JSON").Get("parse")

	unsubscribe := br.Subscribe(func(s signals.Signal) {
		if s.Kind == signals.Error {
			fn.Invoke(parse.Invoke(s.Text()), string(s.Kind))
			return
		}
		fn.Invoke(s.Text(), string(s.Kind))
	}, kinds...)

	var release js.Func
	release = js.FuncOf(func(js.Value, []js.Value) any {
		unsubscribe()
		release.Release()
		return nil
	})
	return release
}
