package schemas

import (
	"errors"
	"fmt"
	"strings"
)

// -- Query Schemas --

// QueryKind names the field of a Query that will be honored.
type QueryKind string

const (
	QueryNone       QueryKind = ""
	QueryByID       QueryKind = "id"
	QueryByTag      QueryKind = "tag"
	QueryByClass    QueryKind = "classname"
	QueryBySelector QueryKind = "css"
)

// Query selects elements in the live tree. At most one field is honored,
// in the order ID, Tag, ClassName, CSS. Empty fields are ignored.
type Query struct {
	ID        string `json:"id,omitempty"`
	Tag       string `json:"tag,omitempty"`
	ClassName string `json:"classname,omitempty"`
	CSS       string `json:"css,omitempty"`
}

// Kind reports which field wins under the precedence rules, or QueryNone
// when every field is empty.
func (q *Query) Kind() QueryKind {
	switch {
	case q == nil:
		return QueryNone
	case q.ID != "":
		return QueryByID
	case q.Tag != "":
		return QueryByTag
	case q.ClassName != "":
		return QueryByClass
	case q.CSS != "":
		return QueryBySelector
	}
	return QueryNone
}

func (q *Query) String() string {
	switch q.Kind() {
	case QueryByID:
		return "#" + q.ID
	case QueryByTag:
		return q.Tag
	case QueryByClass:
		return "." + q.ClassName
	case QueryBySelector:
		return q.CSS
	}
	return "<empty>"
}

// ErrEmptyQuery is returned by ParseQuery for input that names nothing.
var ErrEmptyQuery = errors.New("empty query")

// ParseQuery converts shorthand into a Query: "#x" selects by id, ".x" by
// class name, a purely alphabetic string by tag, anything else is a CSS
// selector.
func ParseQuery(s string) (*Query, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyQuery
	}
	switch s[0] {
	case '#':
		if len(s) == 1 {
			return nil, fmt.Errorf("query %q: %w", s, ErrEmptyQuery)
		}
		return &Query{ID: s[1:]}, nil
	case '.':
		if len(s) == 1 {
			return nil, fmt.Errorf("query %q: %w", s, ErrEmptyQuery)
		}
		return &Query{ClassName: s[1:]}, nil
	}
	if isAlpha(s) {
		return &Query{Tag: s}, nil
	}
	return &Query{CSS: s}, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
