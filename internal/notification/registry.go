package notification

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
)

type SessionID string

// session is one live connection of one recipient.
type session struct {
	id          SessionID
	recipientID int64
	handle      any
	queue       chan events.NotificationEvent
	done        chan struct{}
	streamed    atomic.Bool
	// feed is the broker subscription serving this session; nil until the
	// recipient's feed is installed.
	feed atomic.Pointer[feed]

	once  sync.Once
	cause error
}

func newSession(recipientID int64, handle any, buffer int) *session {
	return &session{
		id:          SessionID(uuid.NewString()),
		recipientID: recipientID,
		handle:      handle,
		queue:       make(chan events.NotificationEvent, buffer),
		done:        make(chan struct{}),
	}
}

func (s *session) terminate(cause error) {
	s.once.Do(func() {
		s.cause = cause
		close(s.done)
	})
}

func (s *session) err() error {
	select {
	case <-s.done:
		return s.cause
	default:
		return nil
	}
}

// Registry maps recipients to their local sessions. Writers serialize on mu;
// readers use the copy-on-write snapshot and never take the lock.
type Registry struct {
	mu          sync.Mutex
	byID        map[SessionID]*session
	byHandle    map[any]SessionID
	byRecipient map[int64]map[SessionID]*session

	snapshot atomic.Pointer[map[int64][]*session]
}

func NewRegistry() *Registry {
	r := &Registry{
		byID:        make(map[SessionID]*session),
		byHandle:    make(map[any]SessionID),
		byRecipient: make(map[int64]map[SessionID]*session),
	}
	empty := make(map[int64][]*session)
	r.snapshot.Store(&empty)
	return r
}

// add inserts s unless its handle is already registered, in which case the
// existing session is returned. first reports whether s is the recipient's
// only session.
func (r *Registry) add(s *session) (registered *session, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.handle != nil {
		if id, ok := r.byHandle[s.handle]; ok {
			return r.byID[id], false
		}
		r.byHandle[s.handle] = s.id
	}

	r.byID[s.id] = s
	set, ok := r.byRecipient[s.recipientID]
	if !ok {
		set = make(map[SessionID]*session)
		r.byRecipient[s.recipientID] = set
	}
	set[s.id] = s

	r.publishLocked(s.recipientID)
	return s, !ok
}

// remove deletes the session. last reports whether the recipient has no
// sessions left, in which case the recipient entry is gone as well.
func (r *Registry) remove(id SessionID) (removed *session, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if s.handle != nil {
		delete(r.byHandle, s.handle)
	}

	set := r.byRecipient[s.recipientID]
	delete(set, id)
	if len(set) == 0 {
		delete(r.byRecipient, s.recipientID)
		last = true
	}

	r.publishLocked(s.recipientID)
	return s, last
}

func (r *Registry) get(id SessionID) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// publishLocked swaps in a new snapshot that differs from the current one only
// for recipientID.
func (r *Registry) publishLocked(recipientID int64) {
	current := *r.snapshot.Load()
	next := make(map[int64][]*session, len(r.byRecipient))
	for k, v := range current {
		if k != recipientID {
			next[k] = v
		}
	}
	if set, ok := r.byRecipient[recipientID]; ok {
		list := make([]*session, 0, len(set))
		for _, s := range set {
			list = append(list, s)
		}
		next[recipientID] = list
	}
	r.snapshot.Store(&next)
}

// sessions returns the recipient's sessions as of the latest snapshot. The
// returned slice must not be modified.
func (r *Registry) sessions(recipientID int64) []*session {
	return (*r.snapshot.Load())[recipientID]
}

func (r *Registry) SessionCount(recipientID int64) int {
	return len(r.sessions(recipientID))
}

// HasRecipient reports whether the recipient has an entry. A recipient with no
// sessions never has one.
func (r *Registry) HasRecipient(recipientID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byRecipient[recipientID]
	return ok
}

func (r *Registry) RecipientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byRecipient)
}

func (r *Registry) all() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}
