package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"
)

const unsubscribeTimeout = 2 * time.Second

type RedisConfig struct {
	Address        string
	Password       string
	DB             int
	MaxIdle        int
	MaxActive      int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// DialFunc opens a dedicated connection. Subscriptions never share pooled
// connections because a subscribed connection cannot issue other commands.
type DialFunc func(ctx context.Context) (redis.Conn, error)

func NewRedisDialer(cfg RedisConfig) DialFunc {
	return func(ctx context.Context) (redis.Conn, error) {
		return redis.DialContext(ctx, "tcp", cfg.Address,
			redis.DialPassword(cfg.Password),
			redis.DialDatabase(cfg.DB),
			redis.DialConnectTimeout(cfg.ConnectTimeout),
		)
	}
}

func NewRedisPool(cfg RedisConfig, dial DialFunc) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		IdleTimeout: cfg.IdleTimeout,
		Wait:        true,
		DialContext: dial,
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// RedisBroker publishes through a shared connection pool and holds one
// dedicated connection per subscription.
type RedisBroker struct {
	pool   *redis.Pool
	dial   DialFunc
	logger *slog.Logger
	closed atomic.Bool
}

func NewRedisBroker(pool *redis.Pool, dial DialFunc, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		pool:   pool,
		dial:   dial,
		logger: logger,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.closed.Load() {
		return ErrBrokerUnavailable
	}

	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer conn.Close()

	receivers, err := redis.Int(conn.Do("PUBLISH", channel, payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	b.logger.Debug("message published", "channel", channel, "receivers", receivers)
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBrokerUnavailable
	}

	conn, err := b.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	psc := redis.PubSubConn{Conn: conn}
	if err := psc.Subscribe(channel); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	// wait for the confirmation so nothing published after we return is missed
	switch v := psc.Receive().(type) {
	case redis.Subscription:
		if v.Kind != "subscribe" || v.Channel != channel {
			conn.Close()
			return nil, fmt.Errorf("%w: unexpected reply %s %s", ErrBrokerUnavailable, v.Kind, v.Channel)
		}
	case error:
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, v)
	default:
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected reply %T", ErrBrokerUnavailable, v)
	}

	s := &redisSubscription{
		psc:     psc,
		channel: channel,
		msgs:    make(chan []byte),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  b.logger,
	}
	go s.receive()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	b.logger.Debug("channel subscribed", "channel", channel)
	return s, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pool.Close()
}

type redisSubscription struct {
	psc     redis.PubSubConn
	channel string
	msgs    chan []byte
	stop    chan struct{}
	done    chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
	stopping  atomic.Bool
	err       error
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.msgs
}

func (s *redisSubscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close asks the server to unsubscribe; the receive loop sees the
// confirmation, closes the connection and ends the subscription.
func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stop)
		if err := s.psc.Unsubscribe(s.channel); err != nil {
			s.logger.Debug("unsubscribe failed", "channel", s.channel, "error", err)
		}
	})

	select {
	case <-s.done:
	case <-time.After(unsubscribeTimeout):
		s.logger.Warn("timed out waiting for unsubscribe", "channel", s.channel)
	}
	return nil
}

func (s *redisSubscription) receive() {
	defer func() {
		s.psc.Conn.Close()
		close(s.msgs)
		close(s.done)
	}()

	for {
		switch v := s.psc.Receive().(type) {
		case redis.Message:
			select {
			case s.msgs <- v.Data:
			case <-s.stop:
				// keep reading until the unsubscribe confirmation arrives
			}
		case redis.Subscription:
			if v.Kind == "unsubscribe" && v.Count == 0 {
				s.err = ErrSubscriptionClosed
				return
			}
		case redis.Pong:
		case error:
			if s.stopping.Load() {
				s.err = ErrSubscriptionClosed
				return
			}
			s.logger.Error("subscription lost", "channel", s.channel, "error", v)
			s.err = errors.Join(ErrBrokerUnavailable, v)
			return
		}
	}
}
