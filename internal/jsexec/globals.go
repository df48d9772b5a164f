package jsexec

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/polyplug/api/schemas"
)

// install defines the script-visible API:
//
//	polyplug.send(msg)       msg is a JSON string or an object to stringify
//	polyplug.onEvent(fn)     fn(payload) per event forward; returns an unsubscribe function
//	polyplug.query(s)        "#id", ".class", "tag" or css shorthand to a query object
//	console.log/info/warn/error/debug
func (h *Host) install(vm *goja.Runtime) {
	if stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify")); ok {
		h.stringify = stringify
	}

	pp := vm.NewObject()
	_ = pp.Set("send", h.jsSend(vm))
	_ = pp.Set("onEvent", h.jsOnEvent(vm))
	_ = pp.Set("query", h.jsQuery(vm))
	_ = vm.Set("polyplug", pp)

	h.installConsole(vm)
}

func (h *Host) jsSend(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		var raw string
		if s, ok := arg.Export().(string); ok {
			raw = s
		} else {
			encoded, err := h.stringify(goja.Undefined(), arg)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			raw = encoded.String()
		}
		h.target.ReceiveMessage(raw)
		return goja.Undefined()
	}
}

func (h *Host) jsOnEvent(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("polyplug.onEvent: handler is not a function"))
		}
		h.nextHandle++
		id := h.nextHandle
		h.handlers[id] = fn
		return vm.ToValue(func(goja.FunctionCall) goja.Value {
			delete(h.handlers, id)
			return goja.Undefined()
		})
	}
}

func (h *Host) jsQuery(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		q, err := schemas.ParseQuery(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		obj := vm.NewObject()
		switch q.Kind() {
		case schemas.QueryByID:
			_ = obj.Set("id", q.ID)
		case schemas.QueryByTag:
			_ = obj.Set("tag", q.Tag)
		case schemas.QueryByClass:
			_ = obj.Set("classname", q.ClassName)
		default:
			_ = obj.Set("css", q.CSS)
		}
		return obj
	}
}

// installConsole routes console output to the logger.
func (h *Host) installConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	logFunc := func(level zapcore.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				if _, isObject := arg.(*goja.Object); isObject && h.stringify != nil {
					if encoded, err := h.stringify(goja.Undefined(), arg); err == nil && !goja.IsUndefined(encoded) {
						args[i] = encoded.String()
						continue
					}
				}
				args[i] = arg.String()
			}
			h.logger.Log(level, "[JS Console]", zap.String("message", strings.Join(args, " ")))
			return goja.Undefined()
		}
	}

	_ = console.Set("log", logFunc(zap.InfoLevel))
	_ = console.Set("info", logFunc(zap.InfoLevel))
	_ = console.Set("warn", logFunc(zap.WarnLevel))
	_ = console.Set("error", logFunc(zap.ErrorLevel))
	_ = console.Set("debug", logFunc(zap.DebugLevel))
	_ = vm.Set("console", console)
}
