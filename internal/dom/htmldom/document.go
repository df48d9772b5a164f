// Package htmldom is an in-memory live document built on golang.org/x/net/html.
// Node identity is stable: the same *html.Node always yields the same dom.Node,
// so listeners and form values survive for as long as the node does.
package htmldom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

// Document is a live HTML document.
type Document struct {
	logger *zap.Logger
	root   *html.Node

	// mu guards the identity map and per-node listener and value state.
	mu    sync.Mutex
	nodes map[*html.Node]*node
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader, logger *zap.Logger) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return newDocument(root, logger), nil
}

// ParseString is Parse over a string.
func ParseString(s string, logger *zap.Logger) (*Document, error) {
	return Parse(strings.NewReader(s), logger)
}

// New returns an empty document with html, head and body elements.
func New(logger *zap.Logger) *Document {
	// Parsing the empty string cannot fail.
	doc, _ := ParseString("", logger)
	return doc
}

func newDocument(root *html.Node, logger *zap.Logger) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{
		logger: logger.Named("htmldom"),
		root:   root,
		nodes:  make(map[*html.Node]*node),
	}
}

// Root returns the document node.
func (d *Document) Root() dom.Node { return d.wrap(d.root) }

// Body returns the body element, or nil.
func (d *Document) Body() dom.Node {
	n := htmlquery.FindOne(d.root, "//body")
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// OuterHTML renders a single node.
func (d *Document) OuterHTML(n dom.Node) string {
	var b strings.Builder
	if err := html.Render(&b, d.unwrap(n).n); err != nil {
		d.logger.Debug("render failed", zap.Error(err))
	}
	return b.String()
}

func (d *Document) CreateElement(tag string) dom.Node {
	tag = strings.ToLower(tag)
	return d.wrap(&html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))})
}

func (d *Document) CreateTextNode(data string) dom.Node {
	return d.wrap(&html.Node{Type: html.TextNode, Data: data})
}

func (d *Document) CreateComment(data string) dom.Node {
	return d.wrap(&html.Node{Type: html.CommentNode, Data: data})
}

// CreateDocumentFragment returns a fragment. Fragments are held as document
// type nodes flagged on their wrapper.
func (d *Document) CreateDocumentFragment() dom.Node {
	n := d.wrap(&html.Node{Type: html.DocumentNode})
	n.fragment = true
	return n
}

func (d *Document) GetElementByID(id string) dom.Node {
	if id == "" {
		return nil
	}
	found, err := htmlquery.Query(d.root, "//*[@id="+xpathLiteral(id)+"]")
	if err != nil || found == nil {
		return nil
	}
	return d.wrap(found)
}

func (d *Document) GetElementsByTagName(tag string) []dom.Node {
	tag = strings.ToLower(tag)
	if tag != "*" && readIdent(tag) != tag {
		return []dom.Node{}
	}
	return d.queryAll("//" + tag)
}

func (d *Document) GetElementsByClassName(class string) []dom.Node {
	classes := strings.Fields(class)
	if len(classes) == 0 {
		return []dom.Node{}
	}
	predicates := make([]string, len(classes))
	for i, c := range classes {
		predicates[i] = classPredicate(c)
	}
	return d.queryAll("//*[" + strings.Join(predicates, " and ") + "]")
}

func (d *Document) QuerySelectorAll(selector string) ([]dom.Node, error) {
	xpath, err := selectorToXPath(selector)
	if err != nil {
		return nil, err
	}
	found, err := htmlquery.QueryAll(d.root, xpath)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}
	return d.wrapAll(found), nil
}

func (d *Document) queryAll(xpath string) []dom.Node {
	found, err := htmlquery.QueryAll(d.root, xpath)
	if err != nil {
		d.logger.Debug("query failed", zap.String("xpath", xpath), zap.Error(err))
		return []dom.Node{}
	}
	return d.wrapAll(found)
}

func (d *Document) wrapAll(found []*html.Node) []dom.Node {
	out := make([]dom.Node, 0, len(found))
	for _, n := range found {
		out = append(out, d.wrap(n))
	}
	return out
}

// wrap returns the unique wrapper for n.
func (d *Document) wrap(n *html.Node) *node {
	if n == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &node{doc: d, n: n}
	d.nodes[n] = w
	return w
}

// unwrap panics when given a node from another implementation or document,
// the same way a browser throws on a foreign node.
func (d *Document) unwrap(n dom.Node) *node {
	w, ok := n.(*node)
	if !ok || w == nil {
		panic(fmt.Errorf("htmldom: foreign node %T", n))
	}
	if w.doc != d {
		panic(fmt.Errorf("htmldom: node belongs to another document"))
	}
	return w
}
