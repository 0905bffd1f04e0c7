package session

import (
	"errors"
	"sync"
	"time"
)

// ErrStale is returned when an update was issued under a session
// generation that has since been replaced by a start or reset.
var ErrStale = errors.New("session changed while the request was in flight")

// Store is the single state container of the client. Every mutation is a
// pure Update applied under the store's lock, so each call behaves like a
// single-writer compare-and-swap. Subscribers observe snapshots in commit
// order.
type Store struct {
	mu    sync.Mutex
	state State
	now   func() time.Time

	subMu     sync.Mutex
	subs      map[int]func(State)
	nextSub   int
	delivered uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxMessages caps the in-memory transcript. 0 disables the cap.
func WithMaxMessages(n int) StoreOption {
	return func(s *Store) { s.state.MaxMessages = n }
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store holding the empty, no-session state.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		state: NewState(0),
		now:   time.Now,
		subs:  make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time { return s.now() }

// Update applies fn and returns the committed state.
func (s *Store) Update(fn Update) State {
	st, _ := s.Apply(func(st State) (State, error) { return fn(st), nil })
	return st
}

// UpdateIf applies fn only if the session generation still equals gen.
func (s *Store) UpdateIf(gen uint64, fn Update) (State, error) {
	return s.Apply(func(st State) (State, error) {
		if st.Generation != gen {
			return st, ErrStale
		}
		return fn(st), nil
	})
}

// Apply runs a guarded transition. If fn returns an error nothing is
// committed and the error is returned with the unchanged state.
func (s *Store) Apply(fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	next, err := fn(s.state.Clone())
	if err != nil {
		cur := s.state.Clone()
		s.mu.Unlock()
		return cur, err
	}
	next.Rev = s.state.Rev + 1
	s.state = next
	snap := next.Clone()
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

// Subscribe registers fn to receive a snapshot after every committed
// update. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// notify delivers snap to subscribers. Snapshots that lost the race to a
// newer revision are skipped so observers never move backwards.
func (s *Store) notify(snap State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if snap.Rev <= s.delivered {
		return
	}
	s.delivered = snap.Rev
	for _, fn := range s.subs {
		fn(snap)
	}
}

// AddMessage appends m to the transcript.
func (s *Store) AddMessage(m Message) State {
	return s.Update(AddMessage(m, s.now()))
}

// AppendStreamChunk merges a streamed fragment into the open turn.
func (s *Store) AppendStreamChunk(text string) State {
	return s.Update(AppendStreamChunk(text, s.now()))
}

// Reset clears the session.
func (s *Store) Reset() State {
	return s.Update(Reset())
}
