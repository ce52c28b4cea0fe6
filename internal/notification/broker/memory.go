package broker

import (
	"context"
	"log/slog"
	"sync"
)

const defaultMemoryBuffer = 256

// MemoryBroker fans out within a single process. It is the default for local
// development and tests; use RedisBroker when more than one server runs.
type MemoryBroker struct {
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

func NewMemoryBroker(logger *slog.Logger, buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerUnavailable
	}

	subs := b.subs[channel]
	if len(subs) == 0 {
		b.logger.Debug("no subscribers for channel", "channel", channel)
		return nil
	}

	for s := range subs {
		select {
		case s.msgs <- payload:
		default:
			b.logger.Warn("subscriber buffer full, dropping message", "channel", channel)
		}
	}

	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerUnavailable
	}

	s := &memorySubscription{
		broker:  b,
		channel: channel,
		msgs:    make(chan []byte, b.buffer),
		done:    make(chan struct{}),
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][s] = struct{}{}

	b.logger.Debug("channel subscribed",
		"channel", channel,
		"total_subscribers", len(b.subs[channel]))

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// Subscribers reports how many live subscriptions the channel has.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerUnavailable
	}
	return nil
}

// Close ends every live subscription with ErrBrokerUnavailable, the same way a
// dropped network connection ends them on a remote broker.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for channel, subs := range b.subs {
		for s := range subs {
			s.terminateLocked(ErrBrokerUnavailable)
		}
		delete(b.subs, channel)
	}
	return nil
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	msgs    chan []byte
	done    chan struct{}
	once    sync.Once
	err     error
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.msgs
}

func (s *memorySubscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *memorySubscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[s.channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.subs, s.channel)
		}
	}
	s.terminateLocked(ErrSubscriptionClosed)
	return nil
}

// terminateLocked must run with broker.mu held for writing so that no Publish
// is sending on msgs while it is closed.
func (s *memorySubscription) terminateLocked(cause error) {
	s.once.Do(func() {
		s.err = cause
		close(s.done)
		close(s.msgs)
	})
}
