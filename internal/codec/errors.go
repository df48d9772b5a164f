package codec

import (
	"fmt"

	"github.com/xkilldash9x/polyplug/internal/dom"
)

// EncodingError is returned for nodes with no portable form, such as the
// document node or a doctype.
type EncodingError struct {
	NodeType dom.NodeType
	NodeName string
	Reason   string
}

func (e *EncodingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot encode node: %s", e.Reason)
	}
	return fmt.Sprintf("cannot encode %s node %q (type %d)", e.NodeType, e.NodeName, int(e.NodeType))
}
