package changefeed

import (
	"context"
	"sync"
)

//Publisher is implemented by the store side of the feed and is called after every committed write
type Publisher interface {
	Publish(event Event) error
}

//Subscriber hands out per table subscriptions, optionally filtered by event kind.
//Subscribing without any kinds delivers every kind.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, kinds ...EventKind) (*Subscription, error)
}

//Broker is a transport that is both ends of the feed
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

//Subscription is a live stream of change events. Events is closed after Unsubscribe
//or when the context passed to Subscribe is done.
type Subscription struct {
	Events <-chan Event

	cancel func()
	once   sync.Once
}

//NewSubscription wraps an event stream so that consumers can be driven by synthetic events
func NewSubscription(events <-chan Event, cancel func()) *Subscription {
	return &Subscription{Events: events, cancel: cancel}
}

//Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func wantsKind(kinds []EventKind, kind EventKind) bool {
	if len(kinds) == 0 {
		return true
	}

	for _, k := range kinds {
		if k == kind {
			return true
		}
	}

	return false
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) error {
	return nil
}

//NopPublisher returns a publisher that discards every event
func NopPublisher() Publisher {
	return nopPublisher{}
}
