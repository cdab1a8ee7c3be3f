package relay

import (
	"context"
	"errors"

	"mail-relay-bot/internal/logging"
	"mail-relay-bot/internal/models"
)

// ErrSubscriptionClosed is returned by Subscriber.Run when the transport ends the subscription.
var ErrSubscriptionClosed = errors.New("relay subscription closed")

type Publisher struct {
	transport Transport
	channel   string
}

func NewPublisher(transport Transport, channel string) *Publisher {
	return &Publisher{transport: transport, channel: channel}
}

// Publish broadcasts mail on the channel. Delivery is not acknowledged.
func (p *Publisher) Publish(ctx context.Context, mail *models.Mail) error {
	payload, err := Encode(mail)
	if err != nil {
		return err
	}
	if err := p.transport.Publish(ctx, p.channel, payload); err != nil {
		return err
	}
	logging.WithTrace(mail.TraceID).Debugf("Published message from %s on %q", mail.Sender, p.channel)
	return nil
}

// Handler processes one decoded mail. A returned error stops the subscriber.
type Handler func(ctx context.Context, mail *models.Mail) error

type Subscriber struct {
	transport Transport
	channel   string
}

func NewSubscriber(transport Transport, channel string) *Subscriber {
	return &Subscriber{transport: transport, channel: channel}
}

// Run receives envelopes until ctx is cancelled. Envelopes that fail to decode are
// discarded; handler errors end the loop.
func (s *Subscriber) Run(ctx context.Context, handle Handler) error {
	sub, err := s.transport.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}
	defer func(sub Subscription) {
		_ = sub.Close()
	}(sub)

	logging.Log.Infof("Listening for messages on %q", s.channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			mail, err := Decode(payload)
			if err != nil {
				logging.WithTrace("").WithError(err).Warn("Discarding relay envelope")
				continue
			}
			if err := handle(ctx, mail); err != nil {
				return err
			}
		}
	}
}
