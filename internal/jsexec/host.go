// Package jsexec hosts a JavaScript program in goja that plays the remote
// runtime: it sends protocol messages to a bridge and receives the event
// forwards the bridge publishes.
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/internal/signals"
)

// DefaultTimeout bounds a script run when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Target is the bridge side of the protocol.
type Target interface {
	ReceiveMessage(raw string)
	Subscribe(fn signals.Handler, kinds ...signals.Kind) func()
}

// Host owns a VM and the event loop that serializes every call into it.
// Messages the script sends reach the Target on the loop goroutine, one at a
// time, in send order.
type Host struct {
	logger    *zap.Logger
	target    Target
	loop      *eventloop.EventLoop
	vm        *goja.Runtime
	stringify goja.Callable
	timeout   time.Duration

	execMutex sync.Mutex
	closeOnce sync.Once

	// Only touched on the loop goroutine.
	handlers   map[int]goja.Callable
	nextHandle int

	unsubscribe func()
}

// Option configures a Host.
type Option func(*Host)

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHost starts an event loop and installs the polyplug and console globals.
// Close must be called to stop the loop.
func NewHost(target Target, logger *zap.Logger, opts ...Option) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{
		logger:   logger.Named("jsexec"),
		target:   target,
		loop:     eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		timeout:  DefaultTimeout,
		handlers: make(map[int]goja.Callable),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.loop.Start()
	ready := make(chan struct{})
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer close(ready)
		h.vm = vm
		h.install(vm)
	})
	<-ready

	h.unsubscribe = target.Subscribe(h.onSignal, signals.Event)
	return h
}

// Close detaches from the target and stops the loop.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.unsubscribe()
		h.loop.Stop()
	})
}

// Run executes script on the loop, then waits for the jobs it queued there,
// such as event handlers triggered by its messages. Context cancellation
// interrupts the VM.
func (h *Host) Run(ctx context.Context, script string) error {
	if err := h.onLoop(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunString(script)
		return err
	}); err != nil {
		return err
	}
	return h.drain(ctx)
}

// Fire runs fn on the loop, typically a DOM event dispatch, and returns once
// every event handler it caused in the script has run.
func (h *Host) Fire(ctx context.Context, fn func()) error {
	if err := h.onLoop(ctx, func(*goja.Runtime) error {
		fn()
		return nil
	}); err != nil {
		return err
	}
	return h.drain(ctx)
}

// drain returns once every job queued before it has run.
func (h *Host) drain(ctx context.Context) error {
	return h.onLoop(ctx, func(*goja.Runtime) error { return nil })
}

func (h *Host) onLoop(ctx context.Context, fn func(*goja.Runtime) error) error {
	h.execMutex.Lock()
	defer h.execMutex.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.ClearInterrupt()
		done <- fn(vm)
	})

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		h.vm.Interrupt(ctx.Err())
		err = <-done
	}
	return h.translate(ctx, err)
}

func (h *Host) translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("javascript execution interrupted by context: %w", ctx.Err())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fmt.Errorf("javascript exception: %s", exception.Error())
	}
	return fmt.Errorf("javascript error: %w", err)
}

// onSignal may run on any goroutine, so handler calls are queued on the loop.
func (h *Host) onSignal(s signals.Signal) {
	payload := s.Text()
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.ClearInterrupt()
		for _, id := range h.handlerOrder() {
			handler, ok := h.handlers[id]
			if !ok {
				continue
			}
			if _, err := handler(goja.Undefined(), vm.ToValue(payload)); err != nil {
				h.logger.Error("Event handler failed", zap.Error(err))
			}
		}
	})
}

func (h *Host) handlerOrder() []int {
	ids := make([]int, 0, len(h.handlers))
	for id := 1; id <= h.nextHandle; id++ {
		if _, ok := h.handlers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
