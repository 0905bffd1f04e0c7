package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abhisek/codecoach/internal/session"
)

type fakeConn struct {
	frames    chan Frame
	errs      chan error
	sent      chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan Frame, 16),
		errs:   make(chan error, 1),
		sent:   make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return Frame{}, err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.closed:
		return Frame{}, net.ErrClosed
	}
}

func (c *fakeConn) Send(_ context.Context, text string) error {
	c.sent <- text
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer fails the first failFirst dials (all of them if failAll)
// and hands every successful connection to dialed.
type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	failFirst int
	failAll   bool
	dialed    chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()
	if d.failAll || n <= d.failFirst {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.dialed <- c
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func fastPolicy() Policy {
	return Policy{Enabled: true, MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func activeStore(t *testing.T) (*session.Store, uint64) {
	t.Helper()
	s := session.NewStore()
	s.Update(session.BeginSession("1", session.Info{Problem: "reverse a linked list"}))
	st := s.Update(session.ConfirmSession("abc123", "Let's begin...", time.Now()))
	return s, st.Generation
}

func nextConn(t *testing.T, d *fakeDialer) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

func waitFor(t *testing.T, s *session.Store, cond func(session.State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.State()) }, 2*time.Second, 2*time.Millisecond)
}

func waitDone(t *testing.T, sup *Supervisor) {
	t.Helper()
	select {
	case <-sup.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not exit")
	}
}

func TestSupervisor_DeliversFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())
	defer sup.Close()

	c := nextConn(t, d)
	waitFor(t, store, func(st session.State) bool { return st.Connection == session.ConnConnected })

	c.frames <- Chunk("First,")
	c.frames <- Chunk(" consider...")
	c.frames <- End()

	waitFor(t, store, func(st session.State) bool {
		m, ok := st.LastMessage()
		return ok && m.Complete && m.Kind == session.KindChat
	})
	st := store.State()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "Let's begin...", st.Messages[0].Text)
	assert.Equal(t, "First, consider...", st.Messages[1].Text)
	assert.False(t, st.Streaming)
}

func TestSupervisor_Send(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)

	require.ErrorIs(t, sup.Send(context.Background(), "early"), ErrNotConnected)

	sup.Start(context.Background())
	defer sup.Close()
	c := nextConn(t, d)
	waitFor(t, store, func(st session.State) bool { return st.Connection == session.ConnConnected })

	require.NoError(t, sup.Send(context.Background(), "How do I start?"))
	assert.Equal(t, "How do I start?", <-c.sent)
}

func TestSupervisor_ReconnectsAfterDrop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())
	defer sup.Close()

	c1 := nextConn(t, d)
	c1.frames <- Chunk("partial")
	waitFor(t, store, func(st session.State) bool { return st.Streaming })
	c1.errs <- io.ErrUnexpectedEOF

	nextConn(t, d)
	waitFor(t, store, func(st session.State) bool { return st.Connection == session.ConnConnected && !st.Streaming })

	st := store.State()
	m, _ := st.LastMessage()
	assert.Equal(t, "partial", m.Text)
	assert.True(t, m.Complete, "dropped turn must be closed")
	assert.Zero(t, st.OpenTurn)
	assert.Empty(t, st.Err)
}

func TestSupervisor_GivesUpAfterMaxAttempts(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	d.failAll = true
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())
	waitDone(t, sup)

	st := store.State()
	assert.Equal(t, session.ConnDisconnected, st.Connection)
	assert.Equal(t, msgConnectFailed, st.Err)
	assert.Equal(t, 3, d.count())
}

func TestSupervisor_RecoversAfterFailedDials(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	d.failFirst = 2
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())
	defer sup.Close()

	nextConn(t, d)
	waitFor(t, store, func(st session.State) bool { return st.Connection == session.ConnConnected })
	assert.Equal(t, 3, d.count())
}

func TestSupervisor_DisabledPolicyStopsOnDrop(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	p := fastPolicy()
	p.Enabled = false
	sup := NewSupervisor(d, store, "abc123", gen, p, nil)
	sup.Start(context.Background())

	c := nextConn(t, d)
	c.errs <- io.ErrUnexpectedEOF
	waitDone(t, sup)

	st := store.State()
	assert.Equal(t, session.ConnDisconnected, st.Connection)
	assert.Empty(t, st.Err)
	assert.Equal(t, 1, d.count())
}

func TestSupervisor_ServerCloseDoesNotRedial(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())

	c := nextConn(t, d)
	c.frames <- Error("Invalid session ID. Please restart.")
	waitFor(t, store, func(st session.State) bool { return st.Err != "" })
	c.errs <- ErrServerClosed
	waitDone(t, sup)

	st := store.State()
	assert.Equal(t, session.ConnDisconnected, st.Connection)
	assert.Equal(t, "Invalid session ID. Please restart.", st.Err)
	assert.Equal(t, 1, d.count())
}

func TestSupervisor_StopsWhenSessionReplaced(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())

	c := nextConn(t, d)
	waitFor(t, store, func(st session.State) bool { return st.Connection == session.ConnConnected })
	store.Reset()
	c.frames <- Chunk("late")
	waitDone(t, sup)

	st := store.State()
	assert.Empty(t, st.Messages)
	assert.Equal(t, session.ConnIdle, st.Connection)
}

func TestSupervisor_IgnoresMalformedFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, gen := activeStore(t)
	d := newFakeDialer()
	sup := NewSupervisor(d, store, "abc123", gen, fastPolicy(), nil)
	sup.Start(context.Background())
	defer sup.Close()

	c := nextConn(t, d)
	c.errs <- &MalformedFrameError{Data: []byte("{"), Err: io.ErrUnexpectedEOF}
	c.frames <- Chunk("still here")
	c.frames <- End()

	waitFor(t, store, func(st session.State) bool {
		m, _ := st.LastMessage()
		return m.Text == "still here" && m.Complete
	})
	assert.Equal(t, 1, d.count())
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{10, time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			got := p.Backoff(tt.attempt)
			lo := time.Duration(float64(tt.base) * 0.8)
			hi := time.Duration(float64(tt.base) * 1.2)
			if got < lo || got > hi {
				t.Fatalf("Backoff(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
			}
		}
	}
}
