//go:build js && wasm

package jsdom

import (
	"syscall/js"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

type node struct {
	d *Document
	v js.Value
}

// JSValue exposes the underlying JS object.
func (w *node) JSValue() js.Value { return w.v }

func (w *node) NodeType() dom.NodeType { return dom.NodeType(w.v.Get("nodeType").Int()) }
func (w *node) NodeName() string       { return w.v.Get("nodeName").String() }

func (w *node) NodeValue() string {
	v := w.v.Get("nodeValue")
	if v.IsNull() || v.IsUndefined() {
		return ""
	}
	return v.String()
}

func (w *node) SetNodeValue(v string) { w.v.Set("nodeValue", v) }

func (w *node) TagName() string {
	if w.NodeType() != dom.ElementNode {
		return ""
	}
	return w.v.Get("tagName").String()
}

func (w *node) isTextarea() bool {
	return w.NodeType() == dom.ElementNode && w.v.Get("localName").String() == "textarea"
}

func (w *node) Value() string {
	if !w.isTextarea() {
		return ""
	}
	return w.v.Get("value").String()
}

func (w *node) SetValue(v string) {
	if w.isTextarea() {
		w.v.Set("value", v)
	}
}

func (w *node) Attributes() []dom.Attribute {
	attrs := w.v.Get("attributes")
	if attrs.IsNull() || attrs.IsUndefined() {
		return nil
	}
	out := make([]dom.Attribute, attrs.Length())
	for i := range out {
		a := attrs.Index(i)
		out[i] = dom.Attribute{Name: a.Get("name").String(), Value: a.Get("value").String()}
	}
	return out
}

func (w *node) GetAttribute(name string) (string, bool) {
	if w.NodeType() != dom.ElementNode || !w.v.Call("hasAttribute", name).Bool() {
		return "", false
	}
	return w.v.Call("getAttribute", name).String(), true
}

func (w *node) SetAttribute(name, value string) { w.v.Call("setAttribute", name, value) }
func (w *node) RemoveAttribute(name string)     { w.v.Call("removeAttribute", name) }

func (w *node) ChildNodes() []dom.Node { return w.d.wrapList(w.v.Get("childNodes")) }

func (w *node) AppendChild(child dom.Node) { w.v.Call("appendChild", w.d.unwrap(child)) }

func (w *node) ReplaceChild(newChild, oldChild dom.Node) {
	w.v.Call("replaceChild", w.d.unwrap(newChild), w.d.unwrap(oldChild))
}

func (w *node) RemoveChild(child dom.Node) { w.v.Call("removeChild", w.d.unwrap(child)) }

func (w *node) AddEventListener(eventType string, l *dom.Listener) {
	if l != nil {
		w.d.attach(w.v, eventType, l)
	}
}

func (w *node) RemoveEventListener(eventType string, l *dom.Listener) {
	if l != nil {
		w.d.detach(w.v, eventType, l)
	}
}

func (w *node) IsSameNode(other dom.Node) bool {
	o, ok := other.(*node)
	return ok && o != nil && w.v.Equal(o.v)
}
