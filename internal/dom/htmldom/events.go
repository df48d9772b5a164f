package htmldom

import (
	"github.com/xkilldash9x/polyplug/internal/dom"
)

func (w *node) AddEventListener(eventType string, l *dom.Listener) {
	if l == nil {
		return
	}
	w.doc.mu.Lock()
	defer w.doc.mu.Unlock()
	for _, existing := range w.listeners[eventType] {
		if existing == l {
			return
		}
	}
	if w.listeners == nil {
		w.listeners = make(map[string][]*dom.Listener)
	}
	w.listeners[eventType] = append(w.listeners[eventType], l)
}

func (w *node) RemoveEventListener(eventType string, l *dom.Listener) {
	w.doc.mu.Lock()
	defer w.doc.mu.Unlock()
	list := w.listeners[eventType]
	for i, existing := range list {
		if existing == l {
			w.listeners[eventType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(w.listeners[eventType]) == 0 {
		delete(w.listeners, eventType)
	}
}

// ListenerCount reports how many listeners of eventType are attached to n.
func ListenerCount(n dom.Node, eventType string) int {
	w, ok := n.(*node)
	if !ok || w == nil {
		return 0
	}
	w.doc.mu.Lock()
	defer w.doc.mu.Unlock()
	return len(w.listeners[eventType])
}

// Dispatch fires eventType at target and lets it bubble through every
// ancestor. Listeners run synchronously on the calling goroutine. It returns
// the number of listeners invoked.
func (d *Document) Dispatch(target dom.Node, eventType string) int {
	t := d.unwrap(target)

	var path []*node
	for p := t.n; p != nil; p = p.Parent {
		path = append(path, d.wrap(p))
	}

	invoked := 0
	for _, current := range path {
		d.mu.Lock()
		listeners := append([]*dom.Listener(nil), current.listeners[eventType]...)
		d.mu.Unlock()

		for _, l := range listeners {
			if l.Handle == nil {
				continue
			}
			l.Handle(dom.Event{Type: eventType, Target: t, CurrentTarget: current})
			invoked++
		}
	}
	return invoked
}
