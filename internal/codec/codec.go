// Package codec converts live nodes to and from the portable tree
// representation exchanged with the remote runtime.
package codec

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/dom"
)

// Codec encodes nodes of any document and decodes into its document.
type Codec struct {
	doc    dom.Document
	logger *zap.Logger
}

// New returns a codec that builds decoded nodes with doc.
func New(doc dom.Document, logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{doc: doc, logger: logger.Named("codec")}
}

// Encode converts n and its subtree. Whitespace-only text children are
// dropped; n itself is always kept.
func (c *Codec) Encode(n dom.Node) (*schemas.PortableNode, error) {
	if n == nil {
		return nil, &EncodingError{Reason: "nil node"}
	}

	switch n.NodeType() {
	case dom.TextNode:
		return schemas.NewText(n.NodeValue()), nil
	case dom.CommentNode:
		return schemas.NewComment(n.NodeValue()), nil
	case dom.ElementNode:
		tag := strings.ToLower(n.TagName())
		var attrs schemas.Attributes
		for _, attr := range n.Attributes() {
			attrs = attrs.Set(attr.Name, attr.Value)
		}
		if tag == "textarea" {
			return schemas.NewTextarea(attrs, n.Value()), nil
		}
		children, err := c.encodeChildren(n)
		if err != nil {
			return nil, err
		}
		return schemas.NewElement(tag, attrs, children...), nil
	case dom.FragmentNode:
		children, err := c.encodeChildren(n)
		if err != nil {
			return nil, err
		}
		return schemas.NewFragment(children...), nil
	}
	return nil, &EncodingError{NodeType: n.NodeType(), NodeName: n.NodeName()}
}

func (c *Codec) encodeChildren(n dom.Node) ([]*schemas.PortableNode, error) {
	children := make([]*schemas.PortableNode, 0)
	for _, child := range n.ChildNodes() {
		encoded, err := c.Encode(child)
		if err != nil {
			return nil, err
		}
		if encoded.NodeType == schemas.TextNode && strings.TrimSpace(encoded.NodeValue) == "" {
			continue
		}
		children = append(children, encoded)
	}
	return children, nil
}

// Decode builds a freestanding node. A nil tree or an unknown node type
// decodes to an empty fragment.
func (c *Codec) Decode(p *schemas.PortableNode) dom.Node {
	if p == nil {
		return c.doc.CreateDocumentFragment()
	}

	switch p.NodeType {
	case schemas.ElementNode:
		el := c.doc.CreateElement(p.TagName)
		for _, attr := range p.Attributes {
			el.SetAttribute(attr.Name, attr.Value)
		}
		if p.IsTextarea() {
			el.SetValue(p.Value)
			return el
		}
		c.decodeChildren(el, p.ChildNodes)
		return el
	case schemas.TextNode:
		return c.doc.CreateTextNode(p.NodeValue)
	case schemas.CommentNode:
		return c.doc.CreateComment(p.NodeValue)
	case schemas.FragmentNode:
		frag := c.doc.CreateDocumentFragment()
		c.decodeChildren(frag, p.ChildNodes)
		return frag
	}

	c.logger.Debug("Decoding unknown node type as empty fragment", zap.Int("node_type", int(p.NodeType)))
	return c.doc.CreateDocumentFragment()
}

func (c *Codec) decodeChildren(parent dom.Node, children []*schemas.PortableNode) {
	for _, child := range children {
		if child == nil {
			continue
		}
		parent.AppendChild(c.Decode(child))
	}
}

// Serialize encodes n as JSON text.
func (c *Codec) Serialize(n dom.Node) (string, error) {
	encoded, err := c.Encode(n)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to marshal portable node: %w", err)
	}
	return string(data), nil
}

// Deserialize parses JSON text and decodes it.
func (c *Codec) Deserialize(s string) (dom.Node, error) {
	var p schemas.PortableNode
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal portable node: %w", err)
	}
	return c.Decode(&p), nil
}
