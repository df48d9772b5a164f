//go:build js && wasm

// Package jsdom adapts a browser document, reached through syscall/js, to the
// dom interfaces.
package jsdom

import (
	"fmt"
	"sync"
	"syscall/js"

	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

// Document wraps a JS document object.
type Document struct {
	logger *zap.Logger
	doc    js.Value

	mu sync.Mutex
	// funcs holds one JS callback per native listener while it is attached
	// anywhere.
	funcs map[*dom.Listener]*jsListener
}

type attachment struct {
	target    js.Value
	eventType string
}

type jsListener struct {
	fn          js.Func
	attachments []attachment
}

// New wraps the global document.
func New(logger *zap.Logger) *Document {
	return Wrap(js.Global().Get("document"), logger)
}

// Wrap adapts an arbitrary document object.
func Wrap(doc js.Value, logger *zap.Logger) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{
		logger: logger.Named("jsdom"),
		doc:    doc,
		funcs:  make(map[*dom.Listener]*jsListener),
	}
}

func (d *Document) wrap(v js.Value) dom.Node {
	if v.IsNull() || v.IsUndefined() {
		return nil
	}
	return &node{d: d, v: v}
}

func (d *Document) unwrap(n dom.Node) js.Value {
	w, ok := n.(*node)
	if !ok || w == nil {
		panic(fmt.Sprintf("jsdom: node %T does not belong to this document", n))
	}
	return w.v
}

func (d *Document) wrapList(list js.Value) []dom.Node {
	length := list.Length()
	out := make([]dom.Node, 0, length)
	for i := 0; i < length; i++ {
		out = append(out, d.wrap(list.Index(i)))
	}
	return out
}

func (d *Document) CreateElement(tag string) dom.Node {
	return d.wrap(d.doc.Call("createElement", tag))
}

func (d *Document) CreateTextNode(data string) dom.Node {
	return d.wrap(d.doc.Call("createTextNode", data))
}

func (d *Document) CreateComment(data string) dom.Node {
	return d.wrap(d.doc.Call("createComment", data))
}

func (d *Document) CreateDocumentFragment() dom.Node {
	return d.wrap(d.doc.Call("createDocumentFragment"))
}

func (d *Document) GetElementByID(id string) dom.Node {
	if id == "" {
		return nil
	}
	return d.wrap(d.doc.Call("getElementById", id))
}

func (d *Document) GetElementsByTagName(tag string) []dom.Node {
	return d.wrapList(d.doc.Call("getElementsByTagName", tag))
}

func (d *Document) GetElementsByClassName(class string) []dom.Node {
	return d.wrapList(d.doc.Call("getElementsByClassName", class))
}

// QuerySelectorAll reports a selector the browser rejects as an error.
func (d *Document) QuerySelectorAll(selector string) (nodes []dom.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = fmt.Errorf("invalid selector %q: %w", selector, jsErr)
				return
			}
			panic(r)
		}
	}()
	return d.wrapList(d.doc.Call("querySelectorAll", selector)), nil
}

// callbackFor returns the JS function for l, creating it on first use.
func (d *Document) callbackFor(l *dom.Listener) *jsListener {
	if jl, ok := d.funcs[l]; ok {
		return jl
	}
	jl := &jsListener{}
	jl.fn = js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		ev := args[0]
		l.Handle(dom.Event{
			Type:          ev.Get("type").String(),
			Target:        d.wrap(ev.Get("target")),
			CurrentTarget: d.wrap(ev.Get("currentTarget")),
		})
		return nil
	})
	d.funcs[l] = jl
	return jl
}

func (d *Document) attach(target js.Value, eventType string, l *dom.Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	jl := d.callbackFor(l)
	for _, a := range jl.attachments {
		if a.eventType == eventType && a.target.Equal(target) {
			return
		}
	}
	jl.attachments = append(jl.attachments, attachment{target: target, eventType: eventType})
	target.Call("addEventListener", eventType, jl.fn)
}

// detach releases the JS function once its last attachment is gone.
func (d *Document) detach(target js.Value, eventType string, l *dom.Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	jl, ok := d.funcs[l]
	if !ok {
		return
	}
	for i, a := range jl.attachments {
		if a.eventType == eventType && a.target.Equal(target) {
			target.Call("removeEventListener", eventType, jl.fn)
			jl.attachments = append(jl.attachments[:i:i], jl.attachments[i+1:]...)
			break
		}
	}
	if len(jl.attachments) == 0 {
		jl.fn.Release()
		delete(d.funcs, l)
	}
}

// LiveCallbacks reports how many JS functions are currently held.
func (d *Document) LiveCallbacks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.funcs)
}
