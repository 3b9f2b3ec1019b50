package sqsconsumer

import (
	"github.com/rs/zerolog"

	"github.com/our-edu/go-sqs-consumer/internal/messaging"
)

// Router dispatches messages to handlers by the value of a message attribute.
type Router = messaging.Router

// ErrNoRoute is the nack reason for messages no route matches.
var ErrNoRoute = messaging.ErrNoRoute

// NewRouter creates a router keyed on a message attribute. Pass its Handle
// method to New and request the attribute with WithMessageAttributeNames.
//
// Example:
//
//	router := sqsconsumer.NewRouter("event_type", logger)
//	router.Register("OrderCreated", handleOrderCreated)
//	router.Register("OrderCancelled", handleOrderCancelled)
//
//	consumer, err := sqsconsumer.New(router.Handle,
//	    sqsconsumer.WithQueueURL(queueURL),
//	    sqsconsumer.WithMessageAttributeNames("event_type"),
//	)
func NewRouter(attribute string, logger zerolog.Logger) *Router {
	return messaging.NewRouter(attribute, logger)
}
