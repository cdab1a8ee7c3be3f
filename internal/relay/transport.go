// Package relay carries mail from the synchronizer to the notification pipeline over a
// named broadcast channel. The channel is live only: nothing is kept for absent subscribers.
package relay

import (
	"context"
	"sync"

	"mail-relay-bot/internal/logging"
)

// Transport is a named publish/subscribe channel.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers payloads until Close is called.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

const memoryBufferSize = 64

// MemoryBroker is an in-process Transport used when publisher and subscriber share a process.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[*memorySubscription]struct{}{}}
}

// Publish delivers payload to every current subscriber. A subscriber whose buffer is full
// misses the payload.
func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- append([]byte(nil), payload...):
		default:
			logging.Log.Warnf("Relay subscriber on %q is full, dropping message", channel)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{broker: b, channel: channel, ch: make(chan []byte, memoryBufferSize)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[channel] == nil {
		b.subs[channel] = map[*memorySubscription]struct{}{}
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	ch      chan []byte
	once    sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		delete(s.broker.subs[s.channel], s)
		close(s.ch)
	})
	return nil
}
