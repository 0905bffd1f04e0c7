package coach

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/devserver"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/stream"
)

var ctx = context.Background()

func fixedID() string { return "1700000000000" }

func newFakeCoordinator(t *testing.T, f *fakeAPI, opts ...func(*Options)) *Coordinator {
	t.Helper()
	o := Options{ProvisionalID: fixedID}
	for _, fn := range opts {
		fn(&o)
	}
	c := New(f, nil, session.NewStore(), o)
	t.Cleanup(c.Close)
	return c
}

func startFake(t *testing.T, c *Coordinator) {
	t.Helper()
	require.NoError(t, c.StartSession(ctx, StartParams{Problem: "reverse a linked list", Language: "Python", SkillLevel: "beginner"}))
}

type liveEnv struct {
	dev   *devserver.Server
	coord *Coordinator
}

func newLive(t *testing.T, opts ...func(*Options)) *liveEnv {
	t.Helper()
	dev := devserver.New(devserver.Options{})
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	tmpl, err := stream.URLFromBase(srv.URL)
	require.NoError(t, err)
	dialer, err := stream.NewWSDialer(tmpl)
	require.NoError(t, err)

	o := Options{Reconnect: stream.DefaultPolicy()}
	for _, fn := range opts {
		fn(&o)
	}
	c := New(client, dialer, session.NewStore(), o)
	t.Cleanup(c.Close)
	require.NoError(t, c.StartSession(ctx, StartParams{Problem: "reverse a linked list", Language: "Python", SkillLevel: "beginner"}))
	eventually(t, c, func(st session.State) bool { return st.Connection == session.ConnConnected })
	return &liveEnv{dev: dev, coord: c}
}

func (e *liveEnv) id() string { return e.coord.State().SessionID }

func eventually(t *testing.T, c *Coordinator, cond func(session.State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.State()) }, 3*time.Second, 5*time.Millisecond)
}

func TestStartSession_SeedsGreeting(t *testing.T) {
	f := newFakeAPI()
	var got api.StartRequest
	f.start = func(_ context.Context, req api.StartRequest) (*api.StartResponse, error) {
		got = req
		r := &api.StartResponse{SessionID: "abc123"}
		r.Message = "Let's begin..."
		return r, nil
	}
	c := newFakeCoordinator(t, f)
	require.NoError(t, c.StartSession(ctx, StartParams{Problem: "reverse a linked list", Language: "Python", SkillLevel: "beginner", Model: "m"}))

	assert.Equal(t, api.StartRequest{Problem: "reverse a linked list", Language: "Python", SkillLevel: "beginner", Model: "m"}, got)
	st := c.State()
	assert.Equal(t, "abc123", st.SessionID)
	assert.False(t, st.Provisional)
	assert.False(t, st.Initializing)
	assert.Equal(t, session.StageProblemAnalysis, st.Stage)
	assert.Empty(t, st.Err)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, session.SenderAI, st.Messages[0].Sender)
	assert.Equal(t, "Let's begin...", st.Messages[0].Text)
}

func TestStartSession_ProvisionalWhileInFlight(t *testing.T) {
	f := newFakeAPI()
	release := make(chan struct{})
	f.start = func(context.Context, api.StartRequest) (*api.StartResponse, error) {
		<-release
		return &api.StartResponse{SessionID: "abc123"}, nil
	}
	c := newFakeCoordinator(t, f)

	errCh := make(chan error, 1)
	go func() { errCh <- c.StartSession(ctx, StartParams{Problem: "p"}) }()

	eventually(t, c, func(st session.State) bool { return st.Provisional })
	st := c.State()
	assert.Equal(t, "1700000000000", st.SessionID)
	assert.True(t, st.Initializing)
	assert.Empty(t, st.Messages)

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, "abc123", c.State().SessionID)
}

func TestStartSession_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{"business", &api.BusinessError{Message: "OPENROUTER_API_KEY not set"}, "OPENROUTER_API_KEY not set"},
		{"http detail", &api.HTTPError{Status: 500, Detail: "model unavailable"}, "model unavailable"},
		{"transport", &api.TransportError{Op: "POST", Err: errors.New("refused")}, msgStartFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAPI()
			f.start = func(context.Context, api.StartRequest) (*api.StartResponse, error) { return nil, tt.err }
			c := newFakeCoordinator(t, f)

			err := c.StartSession(ctx, StartParams{Problem: "p"})
			require.Error(t, err)
			st := c.State()
			assert.False(t, st.Active())
			assert.False(t, st.Initializing)
			assert.Empty(t, st.Messages)
			assert.Equal(t, tt.wantErr, st.Err)
		})
	}
}

func TestStartSession_EmptyProblem(t *testing.T) {
	f := newFakeAPI()
	c := newFakeCoordinator(t, f)
	require.ErrorIs(t, c.StartSession(ctx, StartParams{Problem: "  "}), ErrEmptyInput)
	assert.Zero(t, f.count("start"))
}

func TestStartSession_ResetDuringStartDiscardsResult(t *testing.T) {
	f := newFakeAPI()
	release := make(chan struct{})
	f.start = func(context.Context, api.StartRequest) (*api.StartResponse, error) {
		<-release
		r := &api.StartResponse{SessionID: "abc123"}
		r.Message = "late greeting"
		return r, nil
	}
	c := newFakeCoordinator(t, f)

	errCh := make(chan error, 1)
	go func() { errCh <- c.StartSession(ctx, StartParams{Problem: "p"}) }()
	eventually(t, c, func(st session.State) bool { return st.Provisional })

	c.ResetSession()
	close(release)

	require.ErrorIs(t, <-errCh, ErrStale)
	st := c.State()
	assert.False(t, st.Active())
	assert.Empty(t, st.Messages)
}

func TestResetSession_ClearsDerivedState(t *testing.T) {
	f := newFakeAPI()
	c := newFakeCoordinator(t, f)
	startFake(t, c)
	require.NoError(t, c.RequestChallenge(ctx))
	require.NoError(t, c.RequestHint(ctx, "stuck"))

	c.ResetSession()
	st := c.State()
	assert.Empty(t, st.SessionID)
	assert.Empty(t, st.Messages)
	assert.Equal(t, session.FirstStage(), st.Stage)
	assert.Nil(t, st.Challenge)
	assert.False(t, st.LearningCompleted)
}

func TestSendMessage_Guards(t *testing.T) {
	f := newFakeAPI()
	c := newFakeCoordinator(t, f)
	require.ErrorIs(t, c.SendMessage(ctx, "hi"), ErrNoSession)

	startFake(t, c)
	require.ErrorIs(t, c.SendMessage(ctx, " "), ErrEmptyInput)

	c.Store().Update(session.SetStreaming(true))
	before := c.State()
	require.ErrorIs(t, c.SendMessage(ctx, "hi"), ErrBusy)
	assert.Len(t, c.State().Messages, len(before.Messages))
}

func TestSendMessage_WithoutStream(t *testing.T) {
	f := newFakeAPI()
	c := newFakeCoordinator(t, f)
	startFake(t, c)

	err := c.SendMessage(ctx, "hello")
	require.ErrorIs(t, err, stream.ErrNotConnected)
	st := c.State()
	assert.False(t, st.Streaming)
	assert.NotEmpty(t, st.Err)
	last, _ := st.LastMessage()
	assert.Equal(t, "hello", last.Text)
}

func TestSendMessage_StreamsReply(t *testing.T) {
	env := newLive(t)
	c := env.coord

	require.NoError(t, c.SendMessage(ctx, "I would use a loop"))

	eventually(t, c, func(st session.State) bool {
		m, ok := st.LastMessage()
		return ok && m.IsAI() && m.Complete && !st.Streaming
	})
	st := c.State()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, session.KindGreeting, st.Messages[0].Kind)
	assert.Equal(t, "I would use a loop", st.Messages[1].Text)
	assert.Contains(t, st.Messages[2].Text, "Problem Analysis")
	assert.Contains(t, st.Messages[2].Text, "I would use a loop")
}

func TestNewSessionReplacesStream(t *testing.T) {
	env := newLive(t)
	c := env.coord
	first := env.id()

	require.NoError(t, c.StartSession(ctx, StartParams{Problem: "two sum"}))
	require.NotEqual(t, first, env.id())
	eventually(t, c, func(st session.State) bool { return st.Connection == session.ConnConnected })

	require.NoError(t, c.SendMessage(ctx, "hash map?"))
	eventually(t, c, func(st session.State) bool { return !st.Streaming })
	assert.Len(t, c.State().Messages, 3)
}

func TestRefresh_AdoptsServerStage(t *testing.T) {
	env := newLive(t)
	require.True(t, env.dev.SetStage(env.id(), session.StageImplementation))

	require.NoError(t, env.coord.Refresh(ctx))
	assert.Equal(t, session.StageImplementation, env.coord.State().Stage)
}

func TestClearError(t *testing.T) {
	f := newFakeAPI()
	c := newFakeCoordinator(t, f)
	c.Store().Update(session.SetError("boom"))
	c.ClearError()
	assert.Empty(t, c.State().Err)
}

func TestExpiredError(t *testing.T) {
	err := &ExpiredError{SessionID: "abc", Err: &api.HTTPError{Status: http.StatusNotFound}}
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, api.IsSessionExpired(err))
}
