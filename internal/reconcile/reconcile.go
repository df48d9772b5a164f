// Package reconcile patches a live subtree in place until it matches a
// target subtree. Children are matched by position, never by key: a node at
// index k stays at index k and has its content rewritten.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

// Reconciler applies in-place patches. It holds no state between calls.
type Reconciler struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{logger: logger.Named("reconcile")}
}

// Mutate patches old's attributes, textarea value and children to match
// target. It reports whether anything changed. After the call old encodes
// the same as target whenever the two share node type and name; target's
// children may have been moved into old.
func (r *Reconciler) Mutate(old, target dom.Node) bool {
	attrs := r.PatchAttributes(old, target)
	value := patchValue(old, target)
	children := false
	if !isTextarea(old) {
		children = r.PatchChildren(old, target)
	}
	changed := attrs || value || children

	r.logger.Debug("Mutated node",
		zap.String("node", old.NodeName()),
		zap.Bool("changed", changed),
		zap.Bool("attributes", attrs),
		zap.Bool("value", value),
		zap.Bool("children", children),
	)
	return changed
}

// PatchAttributes makes old's attributes equal target's. Removals and
// additions are both evaluated.
func (r *Reconciler) PatchAttributes(old, target dom.Node) bool {
	changed := false

	for _, attr := range old.Attributes() {
		if _, ok := target.GetAttribute(attr.Name); !ok {
			old.RemoveAttribute(attr.Name)
			changed = true
		}
	}

	for _, attr := range target.Attributes() {
		current, ok := old.GetAttribute(attr.Name)
		if ok && current == attr.Value {
			continue
		}
		old.SetAttribute(attr.Name, attr.Value)
		changed = true
	}
	return changed
}

// PatchChildren walks both child lists by position. Incompatible pairs are
// replaced, text and comment values are updated, element pairs recurse.
// Extra target children are appended and extra old children removed.
func (r *Reconciler) PatchChildren(old, target dom.Node) bool {
	oldChildren := old.ChildNodes()
	newChildren := target.ChildNodes()
	changed := false

	i := 0
	for ; i < len(oldChildren) && i < len(newChildren); i++ {
		if r.patchPair(old, oldChildren[i], newChildren[i]) {
			changed = true
		}
	}

	for _, extra := range newChildren[i:] {
		old.AppendChild(extra)
		changed = true
	}
	for _, stale := range oldChildren[i:] {
		old.RemoveChild(stale)
		changed = true
	}
	return changed
}

func (r *Reconciler) patchPair(parent, oldChild, newChild dom.Node) bool {
	if oldChild.NodeType() != newChild.NodeType() || oldChild.NodeName() != newChild.NodeName() {
		parent.ReplaceChild(newChild, oldChild)
		return true
	}

	switch oldChild.NodeType() {
	case dom.TextNode, dom.CommentNode:
		if oldChild.NodeValue() == newChild.NodeValue() {
			return false
		}
		oldChild.SetNodeValue(newChild.NodeValue())
		return true
	case dom.ElementNode:
		attrs := r.PatchAttributes(oldChild, newChild)
		if isTextarea(oldChild) {
			return patchValue(oldChild, newChild) || attrs
		}
		return r.PatchChildren(oldChild, newChild) || attrs
	}
	return false
}

func patchValue(old, target dom.Node) bool {
	if !isTextarea(old) || !isTextarea(target) {
		return false
	}
	if old.Value() == target.Value() {
		return false
	}
	old.SetValue(target.Value())
	return true
}

func isTextarea(n dom.Node) bool {
	return n.NodeType() == dom.ElementNode && n.NodeName() == "TEXTAREA"
}
