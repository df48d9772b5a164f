package htmldom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

type node struct {
	doc      *Document
	n        *html.Node
	fragment bool

	// Guarded by doc.mu.
	value     *string
	listeners map[string][]*dom.Listener
}

var _ dom.Node = (*node)(nil)

// HTMLNode exposes the underlying parser node.
func HTMLNode(n dom.Node) *html.Node {
	if w, ok := n.(*node); ok && w != nil {
		return w.n
	}
	return nil
}

func (w *node) NodeType() dom.NodeType {
	switch w.n.Type {
	case html.ElementNode:
		return dom.ElementNode
	case html.TextNode:
		return dom.TextNode
	case html.CommentNode:
		return dom.CommentNode
	case html.DocumentNode:
		if w.fragment {
			return dom.FragmentNode
		}
		return dom.DocumentNode
	case html.DoctypeNode:
		return dom.DoctypeNode
	}
	return 0
}

func (w *node) NodeName() string {
	switch w.NodeType() {
	case dom.ElementNode:
		return strings.ToUpper(w.n.Data)
	case dom.TextNode:
		return "#text"
	case dom.CommentNode:
		return "#comment"
	case dom.FragmentNode:
		return "#document-fragment"
	case dom.DocumentNode:
		return "#document"
	}
	return w.n.Data
}

func (w *node) NodeValue() string {
	switch w.n.Type {
	case html.TextNode, html.CommentNode:
		return w.n.Data
	}
	return ""
}

func (w *node) SetNodeValue(v string) {
	switch w.n.Type {
	case html.TextNode, html.CommentNode:
		w.n.Data = v
	}
}

func (w *node) TagName() string {
	if w.n.Type != html.ElementNode {
		return ""
	}
	return strings.ToUpper(w.n.Data)
}

func (w *node) isTextarea() bool {
	return w.n.Type == html.ElementNode && w.n.Data == "textarea"
}

// Value returns the textarea's current value, which defaults to its text
// content until SetValue is called.
func (w *node) Value() string {
	if !w.isTextarea() {
		return ""
	}
	w.doc.mu.Lock()
	v := w.value
	w.doc.mu.Unlock()
	if v != nil {
		return *v
	}
	var b strings.Builder
	for c := w.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func (w *node) SetValue(v string) {
	if !w.isTextarea() {
		return
	}
	w.doc.mu.Lock()
	w.value = &v
	w.doc.mu.Unlock()
}

// --- Attributes ---

// attrName is the qualified name of attr. The parser splits foreign
// attributes such as xlink:href into Namespace and Key.
func attrName(attr html.Attribute) string {
	if attr.Namespace == "" {
		return attr.Key
	}
	return attr.Namespace + ":" + attr.Key
}

func (w *node) Attributes() []dom.Attribute {
	out := make([]dom.Attribute, len(w.n.Attr))
	for i, attr := range w.n.Attr {
		out[i] = dom.Attribute{Name: attrName(attr), Value: attr.Val}
	}
	return out
}

func (w *node) GetAttribute(name string) (string, bool) {
	for _, attr := range w.n.Attr {
		if attrName(attr) == name {
			return attr.Val, true
		}
	}
	return "", false
}

func (w *node) SetAttribute(name, value string) {
	if w.n.Type != html.ElementNode {
		return
	}
	for i, attr := range w.n.Attr {
		if attrName(attr) == name {
			w.n.Attr[i].Val = value
			return
		}
	}
	w.n.Attr = append(w.n.Attr, html.Attribute{Key: name, Val: value})
}

func (w *node) RemoveAttribute(name string) {
	for i, attr := range w.n.Attr {
		if attrName(attr) == name {
			w.n.Attr = append(w.n.Attr[:i], w.n.Attr[i+1:]...)
			return
		}
	}
}

// --- Tree ---

func (w *node) ChildNodes() []dom.Node {
	var out []dom.Node
	for c := w.n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, w.doc.wrap(c))
	}
	return out
}

func (w *node) AppendChild(child dom.Node) {
	w.insertBefore(w.doc.unwrap(child), nil)
}

func (w *node) ReplaceChild(newChild, oldChild dom.Node) {
	nc, oc := w.doc.unwrap(newChild), w.doc.unwrap(oldChild)
	if oc.n.Parent != w.n {
		panic(fmt.Errorf("htmldom: replaceChild: node is not a child of %s", w.NodeName()))
	}
	if nc == oc {
		return
	}
	w.insertBefore(nc, oc.n)
	w.n.RemoveChild(oc.n)
}

func (w *node) RemoveChild(child dom.Node) {
	c := w.doc.unwrap(child)
	if c.n.Parent != w.n {
		panic(fmt.Errorf("htmldom: removeChild: node is not a child of %s", w.NodeName()))
	}
	w.n.RemoveChild(c.n)
}

// insertBefore detaches c and inserts it before ref, or appends when ref is
// nil. A fragment contributes its children and is left empty.
func (w *node) insertBefore(c *node, ref *html.Node) {
	if c.fragment {
		for _, grandchild := range c.ChildNodes() {
			w.insertBefore(w.doc.unwrap(grandchild), ref)
		}
		return
	}
	for p := w.n; p != nil; p = p.Parent {
		if p == c.n {
			panic(fmt.Errorf("htmldom: hierarchy request: %s cannot contain itself", c.NodeName()))
		}
	}
	if c.n.Parent != nil {
		c.n.Parent.RemoveChild(c.n)
	}
	w.n.InsertBefore(c.n, ref)
}

func (w *node) IsSameNode(other dom.Node) bool {
	o, ok := other.(*node)
	return ok && o == w
}
