// Package locator resolves query descriptors against a live document.
package locator

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/dom"
)

// ErrInvalidQuery is returned for a descriptor with no usable field. It is
// distinct from a valid query that matches nothing.
var ErrInvalidQuery = errors.New("invalid query: no id, tag, classname or css given")

// Locator resolves queries against one document.
type Locator struct {
	doc    dom.Document
	logger *zap.Logger
}

func New(doc dom.Document, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{doc: doc, logger: logger.Named("locator")}
}

// Resolve returns the matching elements in document order. A valid query
// without matches yields an empty, non-nil slice; an invalid one yields a nil
// slice and ErrInvalidQuery.
func (l *Locator) Resolve(q *schemas.Query) ([]dom.Node, error) {
	var (
		nodes []dom.Node
		err   error
	)
	switch q.Kind() {
	case schemas.QueryByID:
		nodes = []dom.Node{}
		if n := l.doc.GetElementByID(q.ID); n != nil {
			nodes = append(nodes, n)
		}
	case schemas.QueryByTag:
		nodes = l.doc.GetElementsByTagName(q.Tag)
	case schemas.QueryByClass:
		nodes = l.doc.GetElementsByClassName(q.ClassName)
	case schemas.QueryBySelector:
		nodes, err = l.doc.QuerySelectorAll(q.CSS)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve css query %q: %w", q.CSS, err)
		}
	default:
		return nil, ErrInvalidQuery
	}

	if nodes == nil {
		nodes = []dom.Node{}
	}
	l.logger.Debug("Resolved query", zap.Stringer("query", q), zap.Int("matches", len(nodes)))
	return nodes, nil
}
