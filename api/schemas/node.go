package schemas

import (
	"errors"
	"fmt"
	"io"
	"strings"

	json "github.com/json-iterator/go"
)

// -- Portable Tree Schemas --

// NodeType carries the DOM node type code.
type NodeType int

const (
	ElementNode  NodeType = 1
	TextNode     NodeType = 3
	CommentNode  NodeType = 8
	DocumentNode NodeType = 9
	FragmentNode NodeType = 11
)

const (
	textNodeName    = "#text"
	commentNodeName = "#comment"
	textareaTag     = "textarea"
)

// Attribute is one name/value pair of an element.
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an insertion ordered attribute map. It marshals to a JSON
// object whose keys keep that order.
type Attributes []Attribute

// Get returns the value stored under name.
func (a Attributes) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Set overwrites name in place or appends it.
func (a Attributes) Set(name, value string) Attributes {
	for i := range a {
		if a[i].Name == name {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attribute{Name: name, Value: value})
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	stream := json.ConfigDefault.BorrowStream(nil)
	defer json.ConfigDefault.ReturnStream(stream)
	a.writeTo(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (a Attributes) writeTo(stream *json.Stream) {
	stream.WriteObjectStart()
	for i, attr := range a {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(attr.Name)
		stream.WriteString(attr.Value)
	}
	stream.WriteObjectEnd()
}

// UnmarshalJSON reads an object into insertion order. Non-string values are
// kept as their JSON text; null becomes the empty string.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	iter := json.ConfigDefault.BorrowIterator(data)
	defer json.ConfigDefault.ReturnIterator(iter)

	if iter.WhatIsNext() == json.NilValue {
		iter.ReadNil()
		*a = nil
		return nil
	}

	out := Attributes{}
	iter.ReadObjectCB(func(it *json.Iterator, field string) bool {
		var value string
		switch it.WhatIsNext() {
		case json.StringValue:
			value = it.ReadString()
		case json.NilValue:
			it.ReadNil()
		default:
			value = it.ReadAny().ToString()
		}
		out = out.Set(field, value)
		return true
	})
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return fmt.Errorf("attributes: %w", iter.Error)
	}
	*a = out
	return nil
}

// PortableNode is the serializable form of a live node. Only the fields that
// belong to NodeType are written on the wire.
type PortableNode struct {
	NodeType   NodeType
	TagName    string
	NodeName   string
	NodeValue  string
	Value      string
	Attributes Attributes
	ChildNodes []*PortableNode
}

// IsTextarea reports whether the node is a textarea element, whose content is
// carried in Value instead of ChildNodes.
func (n *PortableNode) IsTextarea() bool {
	return n != nil && n.NodeType == ElementNode && strings.EqualFold(n.TagName, textareaTag)
}

// NewElement builds an element node with a lowercased tag.
func NewElement(tag string, attrs Attributes, children ...*PortableNode) *PortableNode {
	return &PortableNode{
		NodeType:   ElementNode,
		TagName:    strings.ToLower(tag),
		Attributes: attrs,
		ChildNodes: children,
	}
}

// NewTextarea builds a textarea element holding value.
func NewTextarea(attrs Attributes, value string) *PortableNode {
	return &PortableNode{NodeType: ElementNode, TagName: textareaTag, Attributes: attrs, Value: value}
}

func NewText(value string) *PortableNode {
	return &PortableNode{NodeType: TextNode, NodeName: textNodeName, NodeValue: value}
}

func NewComment(value string) *PortableNode {
	return &PortableNode{NodeType: CommentNode, NodeName: commentNodeName, NodeValue: value}
}

func NewFragment(children ...*PortableNode) *PortableNode {
	return &PortableNode{NodeType: FragmentNode, ChildNodes: children}
}

func (n *PortableNode) MarshalJSON() ([]byte, error) {
	stream := json.ConfigDefault.BorrowStream(nil)
	defer json.ConfigDefault.ReturnStream(stream)
	n.writeTo(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (n *PortableNode) writeTo(stream *json.Stream) {
	if n == nil {
		stream.WriteNil()
		return
	}
	stream.WriteObjectStart()
	stream.WriteObjectField("nodeType")
	stream.WriteInt(int(n.NodeType))

	switch n.NodeType {
	case ElementNode:
		stream.WriteMore()
		stream.WriteObjectField("tagName")
		stream.WriteString(n.TagName)
		if len(n.Attributes) > 0 {
			stream.WriteMore()
			stream.WriteObjectField("attributes")
			n.Attributes.writeTo(stream)
		}
		if n.IsTextarea() {
			stream.WriteMore()
			stream.WriteObjectField("value")
			stream.WriteString(n.Value)
			stream.WriteObjectEnd()
			return
		}
	case TextNode, CommentNode:
		stream.WriteMore()
		stream.WriteObjectField("nodeName")
		stream.WriteString(n.NodeName)
		stream.WriteMore()
		stream.WriteObjectField("nodeValue")
		stream.WriteString(n.NodeValue)
	}

	stream.WriteMore()
	stream.WriteObjectField("childNodes")
	stream.WriteArrayStart()
	for i, child := range n.ChildNodes {
		if i > 0 {
			stream.WriteMore()
		}
		child.writeTo(stream)
	}
	stream.WriteArrayEnd()
	stream.WriteObjectEnd()
}

type portableNodeWire struct {
	NodeType   NodeType        `json:"nodeType"`
	TagName    string          `json:"tagName"`
	NodeName   string          `json:"nodeName"`
	NodeValue  string          `json:"nodeValue"`
	Value      string          `json:"value"`
	Attributes Attributes      `json:"attributes"`
	ChildNodes []*PortableNode `json:"childNodes"`
	Children   []*PortableNode `json:"children"`
}

// UnmarshalJSON accepts "children" as an alias of "childNodes".
func (n *PortableNode) UnmarshalJSON(data []byte) error {
	var wire portableNodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("portable node: %w", err)
	}
	children := wire.ChildNodes
	if children == nil {
		children = wire.Children
	}
	*n = PortableNode{
		NodeType:   wire.NodeType,
		TagName:    wire.TagName,
		NodeName:   wire.NodeName,
		NodeValue:  wire.NodeValue,
		Value:      wire.Value,
		Attributes: wire.Attributes,
		ChildNodes: children,
	}
	return nil
}
