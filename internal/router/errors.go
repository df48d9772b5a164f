package router

import (
	"fmt"

	"github.com/xkilldash9x/polyplug/api/schemas"
)

// HandlerFault wraps a panic raised while a handler ran.
type HandlerFault struct {
	Type  schemas.MessageType
	Panic interface{}
}

func (e *HandlerFault) Error() string {
	return fmt.Sprintf("%s handler panicked: %v", e.Type, e.Panic)
}

// Unwrap exposes the panic value when it is an error.
func (e *HandlerFault) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}
