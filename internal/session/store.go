package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"linkreview/api/internal/auth"
)

var (
	ErrSessionExpired = errors.New("session missing or expired")
	ErrRecordNotFound = errors.New("record not found")
)

// InvalidateHook is called after a session leaves the store, either by TTL
// expiry or explicit removal. Used to purge preview cache entries and search
// index documents for the dead token.
type InvalidateHook func(token string)

// Store holds all live sessions. The store-level lock guards the map; each
// session carries its own lock so mutation on one session never blocks
// another.
type Store struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]*entry
	hooks []InvalidateHook
}

type entry struct {
	mu      sync.Mutex
	session *Session
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*entry),
	}
}

// OnInvalidate registers a hook fired for every session that leaves the
// store. Register before traffic starts; hooks are not synchronized.
func (s *Store) OnInvalidate(hook InvalidateHook) {
	s.hooks = append(s.hooks, hook)
}

// Create mints a session owning the given records. Record positions are
// assigned here as the contiguous sequence 0..n-1 in input order and never
// change afterwards.
func (s *Store) Create(ownerUserID string, records []Record, opts CreateOptions) *Session {
	now := s.now()
	owned := make([]Record, len(records))
	copy(owned, records)
	for i := range owned {
		owned[i].Position = i
		if owned[i].Status == "" {
			owned[i].Status = StatusPending
		}
	}

	sess := &Session{
		Token:             auth.NewSessionToken(),
		OwnerUserID:       ownerUserID,
		OriginalFilename:  opts.OriginalFilename,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.ttl),
		LastAccessedAt:    now,
		AssignedByAdmin:   opts.AssignedByAdmin,
		Descriptor:        opts.Descriptor,
		DuplicatesRemoved: opts.DuplicatesRemoved,
		Records:           owned,
	}

	s.mu.Lock()
	s.items[sess.Token] = &entry{session: sess}
	s.mu.Unlock()
	return sess
}

type CreateOptions struct {
	OriginalFilename  string
	AssignedByAdmin   bool
	Descriptor        *Assignment
	DuplicatesRemoved int
}

// Restore re-inserts a previously snapshotted session, keeping its token and
// timestamps. Expired sessions are dropped on the floor.
func (s *Store) Restore(sess *Session) {
	if sess == nil || sess.Token == "" || sess.Expired(s.now()) {
		return
	}
	s.mu.Lock()
	s.items[sess.Token] = &entry{session: sess}
	s.mu.Unlock()
}

func (s *Store) lookup(token string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.items[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionExpired
	}
	e.mu.Lock()
	if e.session.Expired(s.now()) {
		e.mu.Unlock()
		s.remove(token)
		return nil, ErrSessionExpired
	}
	return e, nil
}

// Touch resolves the session, refreshes LastAccessedAt and slides ExpiresAt
// out by the TTL. Every authenticated read/write path goes through here so
// an unknown or expired token uniformly fails with ErrSessionExpired.
func (s *Store) Touch(token string) error {
	e, err := s.lookup(token)
	if err != nil {
		return err
	}
	now := s.now()
	e.session.LastAccessedAt = now
	e.session.ExpiresAt = now.Add(s.ttl)
	e.mu.Unlock()
	return nil
}

// View calls fn with the live session while holding its lock. fn must not
// retain the pointer after returning.
func (s *Store) View(token string, fn func(*Session) error) error {
	e, err := s.lookup(token)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	now := s.now()
	e.session.LastAccessedAt = now
	e.session.ExpiresAt = now.Add(s.ttl)
	return fn(e.session)
}

// Snapshot returns a deep copy of the session for use outside the lock.
// Unlike View it does not refresh the TTL, so dashboard reads and snapshot
// persistence never keep an idle reviewer session alive.
func (s *Store) Snapshot(token string) (Session, error) {
	e, err := s.lookup(token)
	if err != nil {
		return Session{}, err
	}
	defer e.mu.Unlock()
	out := *e.session
	out.Records = make([]Record, len(e.session.Records))
	copy(out.Records, e.session.Records)
	if e.session.Descriptor != nil {
		d := *e.session.Descriptor
		out.Descriptor = &d
	}
	return out, nil
}

// UpdateRecord locates a record by link and applies the new status and
// feedback atomically under the session lock. Concurrent updates to the
// same link apply in arrival order, last write wins; feedback always comes
// from the caller's payload, never merged.
func (s *Store) UpdateRecord(token, link string, status Status, feedback string) (Record, error) {
	var updated Record
	err := s.View(token, func(sess *Session) error {
		for i := range sess.Records {
			if sess.Records[i].Link == link {
				sess.Records[i].Status = status
				sess.Records[i].Feedback = feedback
				updated = sess.Records[i]
				return nil
			}
		}
		return ErrRecordNotFound
	})
	return updated, err
}

// Invalidate removes a session immediately and fires invalidation hooks.
// Removing an unknown token is not an error.
func (s *Store) Invalidate(token string) {
	if s.remove(token) {
		log.Printf("session: invalidated %s", token)
	}
}

func (s *Store) remove(token string) bool {
	s.mu.Lock()
	_, ok := s.items[token]
	delete(s.items, token)
	s.mu.Unlock()
	if ok {
		for _, hook := range s.hooks {
			hook(token)
		}
	}
	return ok
}

// SweepExpired drops every lapsed session. Called periodically from main.
func (s *Store) SweepExpired() int {
	now := s.now()
	s.mu.RLock()
	var expired []string
	for token, e := range s.items {
		e.mu.Lock()
		if e.session.Expired(now) {
			expired = append(expired, token)
		}
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	for _, token := range expired {
		s.remove(token)
	}
	if len(expired) > 0 {
		log.Printf("session: swept %d expired sessions", len(expired))
	}
	return len(expired)
}

// All returns deep copies of every live session, for dashboards and
// snapshot persistence. Order is unspecified.
func (s *Store) All() []Session {
	s.mu.RLock()
	tokens := make([]string, 0, len(s.items))
	for token := range s.items {
		tokens = append(tokens, token)
	}
	s.mu.RUnlock()

	out := make([]Session, 0, len(tokens))
	for _, token := range tokens {
		if snap, err := s.Snapshot(token); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
