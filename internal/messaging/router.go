// Package messaging routes received messages to handlers.
package messaging

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/contracts"
)

// ErrNoRoute is the nack reason for messages no handler is registered for
var ErrNoRoute = errors.New("messaging: no handler registered for message")

// Router dispatches messages by the value of one message attribute.
// Its Handle method is itself a contracts.MessageHandler.
type Router struct {
	attribute string
	handlers  map[string]contracts.MessageHandler
	fallback  contracts.MessageHandler
	logger    zerolog.Logger
	mutex     sync.RWMutex
}

// NewRouter creates a router keyed on the given message attribute.
// The consumer must request that attribute for routing to work.
func NewRouter(attribute string, logger zerolog.Logger) *Router {
	return &Router{
		attribute: attribute,
		handlers:  make(map[string]contracts.MessageHandler),
		logger:    logger,
	}
}

// Attribute returns the attribute the router is keyed on
func (r *Router) Attribute() string {
	return r.attribute
}

// Register registers a handler for an attribute value
func (r *Router) Register(value string, handler contracts.MessageHandler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handlers[value] = handler
}

// SetFallback sets the handler for messages without a registered route.
// Without a fallback such messages are returned to the queue.
func (r *Router) SetFallback(handler contracts.MessageHandler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.fallback = handler
}

// GetHandler returns the handler for an attribute value
func (r *Router) GetHandler(value string) (contracts.MessageHandler, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	handler, ok := r.handlers[value]
	return handler, ok
}

// ListRoutes returns all registered attribute values, sorted
func (r *Router) ListRoutes() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	routes := make([]string, 0, len(r.handlers))
	for v := range r.handlers {
		routes = append(routes, v)
	}
	sort.Strings(routes)
	return routes
}

// Handle dispatches msg to the handler registered for its attribute value
func (r *Router) Handle(ctx context.Context, msg contracts.Message, ack contracts.AckFunc) error {
	value := msg.MessageAttributes[r.attribute].Value

	r.mutex.RLock()
	handler, ok := r.handlers[value]
	if !ok {
		handler = r.fallback
	}
	r.mutex.RUnlock()

	if handler == nil {
		r.logger.Warn().
			Str("message_id", msg.MessageID).
			Str("attribute", r.attribute).
			Str("value", value).
			Msg("No handler registered, returning message to queue")
		ack(ErrNoRoute)
		return nil
	}

	return handler(ctx, msg, ack)
}
