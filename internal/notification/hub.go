// Package notification delivers task notifications to connected sessions.
//
// Producers call Hub.Publish (usually through a Notifier); the event travels
// through the broker on the recipient's channel and every process holding a
// session for that recipient fans it out locally. Delivery is best effort: a
// session that falls too far behind, or a broker outage, loses events.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification/broker"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

var (
	ErrHubClosed       = errors.New("notification hub closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrStreamTaken     = errors.New("session stream already consumed")

	errSessionGone    = errors.New("session gone")
	errSessionBacklog = errors.New("session queue full")
)

type HubConfig struct {
	SessionBufferSize int
	DeliveryRetries   uint64
	RetryBaseDelay    time.Duration
}

func (c HubConfig) withDefaults() HubConfig {
	if c.SessionBufferSize <= 0 {
		c.SessionBufferSize = 64
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 20 * time.Millisecond
	}
	return c
}

// RecipientChannel is the broker channel that carries a recipient's events.
func RecipientChannel(recipientID int64) string {
	return fmt.Sprintf("notifications:%d", recipientID)
}

type Hub struct {
	broker   broker.Broker
	registry *Registry
	cfg      HubConfig
	logger   *slog.Logger

	// mu orders registry writes with feed install and release. It is never
	// held across a broker call.
	mu    sync.Mutex
	feeds map[int64]*feed

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// feed is this process's broker subscription for one recipient.
type feed struct {
	recipientID int64
	sub         broker.Subscription
}

func NewHub(b broker.Broker, registry *Registry, cfg HubConfig, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if registry == nil {
		registry = NewRegistry()
	}
	return &Hub{
		broker:   b,
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		feeds:    make(map[int64]*feed),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// RegisterSession records a live connection for recipientID. Registering the
// same handle again returns the existing id. A nil handle always creates a
// new session.
//
// The broker subscription for a new recipient is made without holding the
// hub lock, so a slow or unreachable broker only stalls this caller.
func (h *Hub) RegisterSession(ctx context.Context, recipientID int64, handle any) (SessionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if recipientID <= 0 {
		return "", fmt.Errorf("invalid recipient %d", recipientID)
	}

	h.mu.Lock()
	if h.closed.Load() {
		h.mu.Unlock()
		return "", ErrHubClosed
	}

	candidate := newSession(recipientID, handle, h.cfg.SessionBufferSize)
	s, _ := h.registry.add(candidate)
	if s != candidate {
		h.mu.Unlock()
		return s.id, nil
	}
	if f, ok := h.feeds[recipientID]; ok {
		s.feed.Store(f)
		h.mu.Unlock()
		h.registered(s)
		return s.id, nil
	}
	h.mu.Unlock()

	// the feed outlives the registering caller, so it is bound to the hub
	sub, err := h.broker.Subscribe(h.ctx, RecipientChannel(recipientID))

	h.mu.Lock()
	if err != nil {
		h.registry.remove(s.id)
		h.mu.Unlock()
		s.terminate(err)
		h.logger.Error("failed to subscribe recipient channel", "recipient_id", recipientID, "error", err)
		return "", err
	}

	surplus := sub
	switch f, ok := h.feeds[recipientID]; {
	case h.closed.Load():
	case ok:
		// another registration installed the feed while we subscribed
		s.feed.CompareAndSwap(nil, f)
	case h.registry.SessionCount(recipientID) > 0:
		f = &feed{recipientID: recipientID, sub: sub}
		h.feeds[recipientID] = f
		for _, pending := range h.registry.sessions(recipientID) {
			pending.feed.CompareAndSwap(nil, f)
		}
		surplus = nil
		h.wg.Add(1)
		go h.pump(f)
	}
	_, live := h.registry.get(s.id)
	closed := h.closed.Load()
	h.mu.Unlock()

	if surplus != nil {
		go surplus.Close()
	}
	if closed {
		return "", ErrHubClosed
	}
	if !live {
		// ended while we were subscribing
		if err := s.err(); err != nil {
			return "", err
		}
		return "", ErrSessionClosed
	}

	h.registered(s)
	return s.id, nil
}

func (h *Hub) registered(s *session) {
	h.logger.Debug("session registered",
		"session_id", s.id,
		"recipient_id", s.recipientID,
		"local_sessions", h.registry.SessionCount(s.recipientID))
}

// UnregisterSession removes the session and ends its stream. Unknown or
// already removed ids are ignored.
func (h *Hub) UnregisterSession(id SessionID) {
	h.unregister(id, ErrSessionClosed)
}

func (h *Hub) unregister(id SessionID, cause error) {
	h.mu.Lock()
	s, last := h.registry.remove(id)
	var f *feed
	if s != nil && last {
		f = h.feeds[s.recipientID]
		delete(h.feeds, s.recipientID)
	}
	h.mu.Unlock()

	if s == nil {
		return
	}
	s.terminate(cause)

	h.logger.Debug("session unregistered", "session_id", id, "recipient_id", s.recipientID)

	if f != nil {
		// the pump exits once the subscription closes
		go f.sub.Close()
	}
}

// Stream returns the event stream of a registered session. A session has
// exactly one stream; cancelling ctx unregisters the session.
func (h *Hub) Stream(ctx context.Context, id SessionID) (*Stream, error) {
	s, ok := h.registry.get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.streamed.CompareAndSwap(false, true) {
		return nil, ErrStreamTaken
	}

	go func() {
		select {
		case <-ctx.Done():
			h.unregister(id, ctx.Err())
		case <-s.done:
		}
	}()

	return &Stream{hub: h, sess: s}, nil
}

// Subscribe registers an anonymous session for recipientID and returns its
// stream. Closing the stream unregisters the session.
func (h *Hub) Subscribe(ctx context.Context, recipientID int64) (*Stream, error) {
	id, err := h.RegisterSession(ctx, recipientID, nil)
	if err != nil {
		return nil, err
	}
	return h.Stream(ctx, id)
}

// Publish hands ev to the broker and returns without waiting for delivery.
func (h *Hub) Publish(ctx context.Context, ev events.NotificationEvent) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	payload, err := events.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if err := h.broker.Publish(ctx, RecipientChannel(ev.RecipientID), payload); err != nil {
		h.logger.Error("failed to publish notification",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"recipient_id", ev.RecipientID,
			"error", err)
		return err
	}

	return nil
}

func (h *Hub) Ping(ctx context.Context) error {
	return h.broker.Ping(ctx)
}

// Close ends every local session with ErrHubClosed and releases the broker
// subscriptions. It does not close the broker itself.
func (h *Hub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.mu.Lock()
	feeds := h.feeds
	h.feeds = make(map[int64]*feed)
	sessions := h.registry.all()
	for _, s := range sessions {
		h.registry.remove(s.id)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.terminate(ErrHubClosed)
	}

	var g errgroup.Group
	for _, f := range feeds {
		g.Go(f.sub.Close)
	}
	err := g.Wait()

	h.cancel()
	h.wg.Wait()

	h.logger.Info("notification hub closed", "sessions", len(sessions), "feeds", len(feeds))
	return err
}

func (h *Hub) pump(f *feed) {
	defer h.wg.Done()

	for payload := range f.sub.Messages() {
		ev, err := events.Decode(payload)
		if err != nil {
			h.logger.Warn("discarding malformed notification", "recipient_id", f.recipientID, "error", err)
			continue
		}
		for _, s := range h.registry.sessions(f.recipientID) {
			// a session that joined after this feed was released belongs to
			// the recipient's next feed
			if s.feed.Load() != f {
				continue
			}
			h.deliver(s, ev)
		}
	}

	err := f.sub.Err()
	if err == nil || errors.Is(err, broker.ErrSubscriptionClosed) {
		return
	}

	h.logger.Warn("recipient feed lost, ending its sessions", "recipient_id", f.recipientID, "error", err)
	h.dropFeed(f, err)
}

// dropFeed ends every session of the feed's recipient so their owners can
// re-subscribe once the broker is back.
func (h *Hub) dropFeed(f *feed, cause error) {
	h.mu.Lock()
	if h.feeds[f.recipientID] != f {
		h.mu.Unlock()
		return
	}
	delete(h.feeds, f.recipientID)
	sessions := h.registry.sessions(f.recipientID)
	for _, s := range sessions {
		h.registry.remove(s.id)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.terminate(cause)
	}
}

func (h *Hub) deliver(s *session, ev events.NotificationEvent) {
	backoff := retry.WithMaxRetries(h.cfg.DeliveryRetries, retry.NewExponential(h.cfg.RetryBaseDelay))

	err := retry.Do(h.ctx, backoff, func(ctx context.Context) error {
		select {
		case <-s.done:
			return errSessionGone
		default:
		}
		select {
		case s.queue <- ev:
			return nil
		default:
			return retry.RetryableError(errSessionBacklog)
		}
	})

	if err != nil && !errors.Is(err, errSessionGone) {
		h.logger.Warn("dropping notification for slow session",
			"session_id", s.id,
			"recipient_id", s.recipientID,
			"event_id", ev.ID,
			"error", err)
	}
}

// Stream is the lazy, non-restartable sequence of events for one session.
type Stream struct {
	hub  *Hub
	sess *session
}

func (s *Stream) SessionID() SessionID {
	return s.sess.id
}

func (s *Stream) C() <-chan events.NotificationEvent {
	return s.sess.queue
}

// Done is closed when the stream has ended; Err then reports why.
func (s *Stream) Done() <-chan struct{} {
	return s.sess.done
}

func (s *Stream) Err() error {
	return s.sess.err()
}

// Next blocks until an event arrives, the stream ends, or ctx is done.
// Events already queued are returned before the end of stream is reported.
func (s *Stream) Next(ctx context.Context) (events.NotificationEvent, error) {
	select {
	case ev := <-s.sess.queue:
		return ev, nil
	default:
	}

	select {
	case ev := <-s.sess.queue:
		return ev, nil
	case <-s.sess.done:
		return events.NotificationEvent{}, s.sess.err()
	case <-ctx.Done():
		return events.NotificationEvent{}, ctx.Err()
	}
}

func (s *Stream) Close() {
	s.hub.UnregisterSession(s.sess.id)
}
