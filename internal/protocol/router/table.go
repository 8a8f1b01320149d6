package router

import (
	"context"
	"fmt"
	"sort"
)

// Handler serves one command. Handle owns the Call: it must eventually
// send exactly one response through it, either before returning or from
// work started with Call.Go.
type Handler interface {
	Command() string
	Handle(ctx context.Context, call *Call)
}

type funcHandler struct {
	command string
	fn      func(context.Context, *Call)
}

func (h funcHandler) Command() string                        { return h.command }
func (h funcHandler) Handle(ctx context.Context, call *Call) { h.fn(ctx, call) }

// Func adapts a function to a Handler for command.
func Func(command string, fn func(ctx context.Context, call *Call)) Handler {
	return funcHandler{command: command, fn: fn}
}

// Builder collects registrations before the Table is sealed.
type Builder struct {
	handlers map[string]Handler
	sealed   bool
}

func NewBuilder() *Builder {
	return &Builder{handlers: make(map[string]Handler)}
}

// Register adds h under h.Command(). Registering an empty or duplicate
// command, or registering after Build, is a programming error and panics.
func (b *Builder) Register(h Handler) *Builder {
	if b.sealed {
		panic("router: Register called after Build")
	}
	command := h.Command()
	if command == "" {
		panic("router: handler with empty command")
	}
	if _, dup := b.handlers[command]; dup {
		panic(fmt.Sprintf("router: command %q registered twice", command))
	}
	b.handlers[command] = h
	return b
}

// Build seals the builder and returns the immutable dispatch table.
func (b *Builder) Build() *Table {
	b.sealed = true
	handlers := make(map[string]Handler, len(b.handlers))
	for k, v := range b.handlers {
		handlers[k] = v
	}
	return &Table{handlers: handlers}
}

// Table maps command names to handlers. It is read-only once built and
// safe for concurrent lookups without locking.
type Table struct {
	handlers map[string]Handler
}

// NewTable registers every handler and builds the table.
func NewTable(handlers ...Handler) *Table {
	b := NewBuilder()
	for _, h := range handlers {
		b.Register(h)
	}
	return b.Build()
}

func (t *Table) Lookup(command string) (Handler, bool) {
	h, ok := t.handlers[command]
	return h, ok
}

// Commands returns the registered command names, sorted.
func (t *Table) Commands() []string {
	out := make([]string, 0, len(t.handlers))
	for k := range t.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *Table) Len() int { return len(t.handlers) }
