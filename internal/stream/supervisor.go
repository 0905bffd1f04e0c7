package stream

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/session"
)

// ErrNotConnected is returned by Send while no channel is open.
var ErrNotConnected = errors.New("not connected to the tutor")

// Policy controls how a dropped channel is redialed.
type Policy struct {
	Enabled     bool
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultPolicy returns the reconnect policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:     true,
		MaxAttempts: 5,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// Backoff computes the wait before redial number attempt (0-based),
// with ±20% jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt))
	if wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}

	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// Messages written to the error slot by the supervisor.
const (
	msgConnectFailed = "Could not connect to the tutor. Start a new session to try again."
	msgConnLost      = "Connection to the tutor was lost."
)

// Supervisor owns the chat channel of one session. It feeds frames to an
// Assembler and redials with backoff when the transport drops. The
// backend keeps no replay log, so chunks sent while disconnected are lost.
type Supervisor struct {
	dialer    Dialer
	store     *session.Store
	sessionID string
	gen       uint64
	policy    Policy
	logger    *zap.Logger
	asm       *Assembler

	mu   sync.Mutex
	conn Conn

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a supervisor for sessionID under generation gen.
func NewSupervisor(dialer Dialer, store *session.Store, sessionID string, gen uint64, policy Policy, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", sessionID))
	return &Supervisor{
		dialer:    dialer,
		store:     store,
		sessionID: sessionID,
		gen:       gen,
		policy:    policy,
		logger:    logger,
		asm:       NewAssembler(store, gen, logger),
	}
}

// Start launches the supervising goroutine. It runs until ctx is canceled,
// Close is called, the server closes the channel, or redialing gives up.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// Close stops the supervisor and waits for it to exit.
func (s *Supervisor) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Done is closed once the supervising goroutine has exited.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Send writes text to the open channel.
func (s *Supervisor) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, text)
}

func (s *Supervisor) setConn(c Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// setConnection records the channel state; it reports false once the
// store has moved on to another session.
func (s *Supervisor) setConnection(c session.Connection) bool {
	_, err := s.store.UpdateIf(s.gen, session.SetConnection(c))
	return err == nil
}

func (s *Supervisor) giveUp(msg string) {
	fn := session.Chain(session.SetConnection(session.ConnDisconnected), session.SetStreaming(false))
	if msg != "" {
		fn = session.Chain(fn, session.SetError(msg))
	}
	_, _ = s.store.UpdateIf(s.gen, fn)
}

func (s *Supervisor) run(ctx context.Context) {
	if !s.setConnection(session.ConnConnecting) {
		return
	}

	failures := 0
	everConnected := false
	for {
		conn, err := s.dialer.Dial(ctx, s.sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			s.logger.Warn("stream dial failed", zap.Int("attempt", failures), zap.Error(err))
			if !s.policy.Enabled || failures >= s.policy.MaxAttempts {
				msg := msgConnectFailed
				if everConnected {
					msg = msgConnLost
				}
				s.giveUp(msg)
				return
			}
			if !s.wait(ctx, failures-1) {
				return
			}
			continue
		}

		failures = 0
		everConnected = true
		s.setConn(conn)
		if !s.setConnection(session.ConnConnected) {
			s.setConn(nil)
			_ = conn.Close()
			return
		}
		s.logger.Info("stream connected")

		err = s.readLoop(ctx, conn)
		s.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil || errors.Is(err, session.ErrStale) {
			return
		}
		_ = s.asm.Interrupt()

		if errors.Is(err, ErrServerClosed) {
			s.logger.Info("stream closed by server")
			s.giveUp("")
			return
		}
		s.logger.Warn("stream dropped", zap.Error(err))
		if !s.policy.Enabled {
			s.giveUp("")
			return
		}
		if !s.setConnection(session.ConnReconnecting) {
			return
		}
		failures++
		if !s.wait(ctx, 0) {
			return
		}
	}
}

func (s *Supervisor) readLoop(ctx context.Context, conn Conn) error {
	for {
		f, err := conn.Read(ctx)
		if err != nil {
			var mf *MalformedFrameError
			if errors.As(err, &mf) {
				s.logger.Debug("dropping malformed frame", zap.Error(err))
				continue
			}
			return err
		}
		if err := s.asm.Apply(f); err != nil {
			return err
		}
	}
}

// wait sleeps for the backoff of attempt, marking the channel as
// reconnecting. It returns false if the supervisor should stop instead.
func (s *Supervisor) wait(ctx context.Context, attempt int) bool {
	if !s.setConnection(session.ConnReconnecting) {
		return false
	}
	t := time.NewTimer(s.policy.Backoff(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
