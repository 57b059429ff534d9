package messaging

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// Context names used in routes and logs.
const (
	ContextBackground = "background"
	ContextPage       = "page"
)

// HandlerFunc answers one message kind.
type HandlerFunc func(ctx context.Context, msg Message) (*Response, error)

// Router dispatches messages to a fixed table of handlers. The table is set
// at construction and never changes; Close stops accepting messages and waits
// for in-flight handlers.
type Router struct {
	name     string
	handlers map[Kind]HandlerFunc

	mu     sync.RWMutex
	closed bool
}

// NewRouter creates a router for the named context.
func NewRouter(name string, handlers map[Kind]HandlerFunc) *Router {
	table := make(map[Kind]HandlerFunc, len(handlers))
	for k, h := range handlers {
		table[k] = h
	}
	return &Router{name: name, handlers: table}
}

// Name returns the context name.
func (r *Router) Name() string {
	return r.name
}

// Kinds lists the handled message kinds in sorted order.
func (r *Router) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Handles reports whether kind has a handler.
func (r *Router) Handles(kind Kind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Dispatch runs the handler registered for msg.Type.
func (r *Router) Dispatch(ctx context.Context, msg Message) (*Response, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, &MessagingError{Kind: msg.Type, Reason: r.name + " router closed"}
	}
	handler, ok := r.handlers[msg.Type]
	if !ok {
		return nil, &MessagingError{Kind: msg.Type, Reason: "unknown message type"}
	}

	log.Debug().Str("context", r.name).Str("type", string(msg.Type)).Msg("dispatching message")

	resp, err := handler(ctx, msg)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &MessagingError{Kind: msg.Type, Reason: "handler returned no response"}
	}
	return resp, nil
}

// Close tears the router down. It is safe to call more than once.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		log.Debug().Str("context", r.name).Msg("router closed")
	}
	return nil
}
