// Package coach coordinates a learning session: it starts and resets
// sessions, moves them through their stages and issues the auxiliary
// tutor requests, folding every result into a session.Store.
package coach

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/stream"
)

// API is the subset of the backend the coordinator calls.
type API interface {
	StartSession(ctx context.Context, req api.StartRequest) (*api.StartResponse, error)
	NextStage(ctx context.Context, sessionID string) (*api.TransitionResponse, error)
	Complete(ctx context.Context, sessionID string) (*api.CompleteResponse, error)
	Explain(ctx context.Context, sessionID, concept string) (*api.ExplainResponse, error)
	Hint(ctx context.Context, sessionID, query string) (*api.HintResponse, error)
	Challenge(ctx context.Context, sessionID string) (*api.ChallengeData, error)
	CheckChallenge(ctx context.Context, sessionID, answer string) (*api.CheckResult, error)
	Feedback(ctx context.Context, sessionID, code string) (*api.FeedbackResponse, error)
	Status(ctx context.Context, sessionID string) (*api.StatusResponse, error)
}

// Confirmer asks the learner a yes/no question.
type Confirmer interface {
	ConfirmReset(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) ConfirmReset(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

type declineAll struct{}

func (declineAll) ConfirmReset(context.Context, string) bool { return false }

// Options configures a Coordinator.
type Options struct {
	// Confirmer is consulted when the backend reports the session expired.
	// The default declines, leaving an error in place.
	Confirmer Confirmer
	Logger    *zap.Logger
	Reconnect stream.Policy

	// ProvisionalID generates the placeholder id shown while a start
	// request is in flight. Defaults to the current Unix time in ms.
	ProvisionalID func() string
}

// StartParams configures a new session.
type StartParams struct {
	Problem    string
	Language   string
	SkillLevel string
	Model      string
}

// Coordinator owns the session lifecycle. All state lives in the store;
// the coordinator only holds the streaming supervisor of the active
// session.
type Coordinator struct {
	api    API
	dialer stream.Dialer
	store  *session.Store
	opts   Options
	logger *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	sup    *stream.Supervisor
	supGen uint64
}

// New creates a coordinator. dialer may be nil to run without a streaming
// channel, in which case SendMessage always fails.
func New(client API, dialer stream.Dialer, store *session.Store, opts Options) *Coordinator {
	if opts.Confirmer == nil {
		opts.Confirmer = declineAll{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ProvisionalID == nil {
		opts.ProvisionalID = func() string { return strconv.FormatInt(time.Now().UnixMilli(), 10) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		api:     client,
		dialer:  dialer,
		store:   store,
		opts:    opts,
		logger:  opts.Logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Store returns the state container the coordinator writes to.
func (c *Coordinator) Store() *session.Store { return c.store }

// State returns a snapshot of the current state.
func (c *Coordinator) State() session.State { return c.store.State() }

// ClearError empties the error slot.
func (c *Coordinator) ClearError() {
	c.store.Update(session.SetError(""))
}

// Close stops the streaming channel. The store keeps its state.
func (c *Coordinator) Close() {
	c.stopStream()
	c.cancel()
}

// ticket identifies the session an in-flight action was issued under.
type ticket struct {
	gen       uint64
	sessionID string
}

// begin runs guard against the current state and, if it passes, commits
// mutate. It returns the ticket of the session it was applied to.
func (c *Coordinator) begin(guard func(session.State) error, mutate session.Update) (ticket, error) {
	st, err := c.store.Apply(func(st session.State) (session.State, error) {
		if err := guard(st); err != nil {
			return st, err
		}
		if mutate != nil {
			st = mutate(st)
		}
		return st, nil
	})
	if err != nil {
		return ticket{}, err
	}
	return ticket{gen: st.Generation, sessionID: st.SessionID}, nil
}

// finish applies fn if the session of t is still current.
func (c *Coordinator) finish(t ticket, fn session.Update) error {
	_, err := c.store.UpdateIf(t.gen, fn)
	if err != nil {
		c.logger.Debug("discarding result for replaced session", zap.String("session_id", t.sessionID))
	}
	return err
}

func requireReady(st session.State) error {
	if !st.Ready() {
		return ErrNoSession
	}
	return nil
}

// fail routes a request error into the store. A 404 starts the expiry
// flow; anything else lands in the error slot as api.Message(err,
// fallback). The returned error is what the action reports.
func (c *Coordinator) fail(ctx context.Context, t ticket, err error, fallback string, also session.Update) error {
	if api.IsCanceled(err) {
		if also != nil {
			_ = c.finish(t, also)
		}
		return err
	}
	if api.IsSessionExpired(err) {
		if also != nil {
			_ = c.finish(t, also)
		}
		return c.expired(ctx, t, err)
	}
	fn := session.SetError(api.Message(err, fallback))
	if also != nil {
		fn = session.Chain(also, fn)
	}
	c.logger.Warn("request failed", zap.String("session_id", t.sessionID), zap.Error(err))
	_ = c.finish(t, fn)
	return err
}

// expired asks the learner whether to start over. On yes the session is
// reset, otherwise the error slot explains what happened.
func (c *Coordinator) expired(ctx context.Context, t ticket, cause error) error {
	c.logger.Info("session expired on server", zap.String("session_id", t.sessionID))
	if c.opts.Confirmer.ConfirmReset(ctx, PromptSessionExpired) {
		if _, err := c.store.UpdateIf(t.gen, session.Reset()); err == nil {
			c.stopStreamIf(t.gen)
		}
	} else {
		_ = c.finish(t, session.SetError(msgSessionExpired))
	}
	return &ExpiredError{SessionID: t.sessionID, Err: cause}
}

// ExpiredError reports that the backend no longer knows the session.
type ExpiredError struct {
	SessionID string
	Err       error
}

func (e *ExpiredError) Error() string { return "session " + e.SessionID + " expired" }

func (e *ExpiredError) Unwrap() []error { return []error{ErrSessionExpired, e.Err} }
