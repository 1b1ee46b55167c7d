package changefeed

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/logging"
)

const topicPrefix = "realtime."

const subscriptionBufferSize = 64

type watermillBroker struct {
	pubSub *gochannel.GoChannel
	log    logging.Logger
}

//NewInMemoryBroker creates a broker that fans events out to subscribers within this process.
//Publish blocks until every current subscriber has accepted the event, which keeps the
//per table ordering that the views rely on.
func NewInMemoryBroker(log logging.Logger) Broker {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            subscriptionBufferSize,
			BlockPublishUntilSubscriberAck: true,
		},
		&watermillLogger{log: log},
	)

	return &watermillBroker{pubSub: pubSub, log: log}
}

func topicFor(table string) string {
	return topicPrefix + table
}

func (b *watermillBroker) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(event.Kind))

	return b.pubSub.Publish(topicFor(event.Table), msg)
}

func (b *watermillBroker) Subscribe(ctx context.Context, table string, kinds ...EventKind) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	messages, err := b.pubSub.Subscribe(ctx, topicFor(table))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	events := make(chan Event, subscriptionBufferSize)

	go func() {
		defer close(events)

		for msg := range messages {
			event := Event{}
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.log.Errorf("Dropping undecodable change event on %s: %s", table, err.Error())
				msg.Ack()
				continue
			}

			if !wantsKind(kinds, event.Kind) {
				msg.Ack()
				continue
			}

			select {
			case events <- event:
				msg.Ack()
			case <-ctx.Done():
				msg.Ack()
				return
			}
		}
	}()

	return NewSubscription(events, cancel), nil
}

func (b *watermillBroker) Close() error {
	return b.pubSub.Close()
}

type watermillLogger struct {
	log    logging.Logger
	fields watermill.LogFields
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Errorf("%s: %v %v", msg, err, l.fields.Add(fields))
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Debugf("%s %v", msg, l.fields.Add(fields))
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debugf("%s %v", msg, l.fields.Add(fields))
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log, fields: l.fields.Add(fields)}
}
