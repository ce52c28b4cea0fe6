// Package broker carries encoded notification events between processes.
//
// A Broker maps a logical channel name to every subscriber of that channel,
// whichever process it lives in. Delivery is at-most-once: messages published
// while a subscriber is disconnected are lost.
package broker

import (
	"context"
	"errors"
)

var (
	// ErrBrokerUnavailable is returned when the broker connection is lost or cannot be established.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrSubscriptionClosed is the Err of a subscription that was closed by its owner.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

type Broker interface {
	// Publish hands payload to the broker and returns without waiting for subscribers.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is active on the broker.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription delivers payloads in publish order. Messages is closed when the
// subscription ends; Err then reports why.
type Subscription interface {
	Messages() <-chan []byte
	Err() error
	Close() error
}
