// Package dom defines the capabilities the bridge needs from a live document
// tree. Implementations live in subpackages: htmldom keeps the tree in memory,
// jsdom drives a browser's document through syscall/js.
package dom

// NodeType is the DOM node type code.
type NodeType int

const (
	ElementNode  NodeType = 1
	TextNode     NodeType = 3
	CommentNode  NodeType = 8
	DocumentNode NodeType = 9
	DoctypeNode  NodeType = 10
	FragmentNode NodeType = 11
)

func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case DocumentNode:
		return "document"
	case DoctypeNode:
		return "doctype"
	case FragmentNode:
		return "fragment"
	}
	return "unknown"
}

// Event is delivered to a Listener when an event fires on a node it is
// attached to.
type Event struct {
	Type string
	// Target is the node the event was dispatched on.
	Target Node
	// CurrentTarget is the node whose listener is running.
	CurrentTarget Node
}

// Listener is a native event callback. Listeners are compared by pointer, so
// the same *Listener must be passed to RemoveEventListener that was given to
// AddEventListener.
type Listener struct {
	Handle func(Event)
}

// NewListener wraps fn.
func NewListener(fn func(Event)) *Listener {
	return &Listener{Handle: fn}
}

// Node is a live node. Mutating methods act on the live tree immediately.
type Node interface {
	NodeType() NodeType
	// NodeName is "#text", "#comment", "#document-fragment" or the element's
	// upper case tag name.
	NodeName() string
	NodeValue() string
	SetNodeValue(v string)

	// TagName is empty for anything but elements.
	TagName() string
	// Value and SetValue carry the form value of a textarea.
	Value() string
	SetValue(v string)

	Attributes() []Attribute
	GetAttribute(name string) (string, bool)
	SetAttribute(name, value string)
	RemoveAttribute(name string)

	ChildNodes() []Node
	// AppendChild detaches child from its current parent first. Appending a
	// fragment moves its children instead.
	AppendChild(child Node)
	ReplaceChild(newChild, oldChild Node)
	RemoveChild(child Node)

	AddEventListener(eventType string, l *Listener)
	RemoveEventListener(eventType string, l *Listener)

	IsSameNode(other Node) bool
}

// Attribute is a live attribute in document order.
type Attribute struct {
	Name  string
	Value string
}

// Document creates freestanding nodes and answers queries over the live tree.
type Document interface {
	CreateElement(tag string) Node
	CreateTextNode(data string) Node
	CreateComment(data string) Node
	CreateDocumentFragment() Node

	// GetElementByID returns nil when nothing matches.
	GetElementByID(id string) Node
	GetElementsByTagName(tag string) []Node
	GetElementsByClassName(class string) []Node
	QuerySelectorAll(selector string) ([]Node, error)
}
