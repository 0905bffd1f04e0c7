package coach

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
)

func TestTransition_VisitsEveryStageOnce(t *testing.T) {
	env := newLive(t)
	c := env.coord

	visited := []session.Stage{c.State().Stage}
	for range 4 {
		require.NoError(t, c.TransitionToNextStage(ctx))
		visited = append(visited, c.State().Stage)
	}
	assert.Equal(t, session.Stages(), visited)

	st := c.State()
	transitions := 0
	for _, m := range st.Messages {
		if m.Kind == session.KindTransition {
			transitions++
		}
	}
	assert.Equal(t, 4, transitions)

	require.ErrorIs(t, c.TransitionToNextStage(ctx), ErrLastStage)
	assert.Equal(t, session.StageReflection, c.State().Stage)
	assert.False(t, c.State().Transitioning)
}

func TestTransition_GuardsSendNoRequest(t *testing.T) {
	f := newFakeAPI()
	c := newFakeCoordinator(t, f)

	require.ErrorIs(t, c.TransitionToNextStage(ctx), ErrNoSession)

	startFake(t, c)
	c.Store().Update(session.SetTransitioning(true))
	require.ErrorIs(t, c.TransitionToNextStage(ctx), ErrTransitionInFlight)
	require.ErrorIs(t, c.CompleteLearning(ctx), ErrTransitionInFlight)
	c.Store().Update(session.SetTransitioning(false))

	c.Store().Update(session.SetStage(session.StageReflection))
	require.ErrorIs(t, c.TransitionToNextStage(ctx), ErrLastStage)

	assert.Zero(t, f.count("next"))
	assert.Zero(t, f.count("complete"))
}

func TestTransition_OverlappingCallsAreSerialized(t *testing.T) {
	f := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	f.next = func(context.Context, string) (*api.TransitionResponse, error) {
		close(entered)
		<-release
		return &api.TransitionResponse{NewStage: "solution_design", TransitionMessage: "Design time."}, nil
	}
	c := newFakeCoordinator(t, f)
	startFake(t, c)

	errCh := make(chan error, 1)
	go func() { errCh <- c.TransitionToNextStage(ctx) }()
	<-entered

	require.ErrorIs(t, c.TransitionToNextStage(ctx), ErrTransitionInFlight)
	close(release)
	require.NoError(t, <-errCh)

	st := c.State()
	assert.Equal(t, session.StageSolutionDesign, st.Stage)
	assert.False(t, st.Transitioning)
	assert.Equal(t, 1, f.count("next"))
}

func TestTransition_TrustsServerStage(t *testing.T) {
	f := newFakeAPI()
	f.next = func(context.Context, string) (*api.TransitionResponse, error) {
		return &api.TransitionResponse{NewStage: "implementation", TransitionMessage: "Skipping ahead."}, nil
	}
	c := newFakeCoordinator(t, f)
	startFake(t, c)

	require.NoError(t, c.TransitionToNextStage(ctx))
	assert.Equal(t, session.StageImplementation, c.State().Stage)
}

func TestTransition_UnknownStage(t *testing.T) {
	f := newFakeAPI()
	f.next = func(context.Context, string) (*api.TransitionResponse, error) {
		return &api.TransitionResponse{NewStage: "deployment"}, nil
	}
	c := newFakeCoordinator(t, f)
	startFake(t, c)

	require.Error(t, c.TransitionToNextStage(ctx))
	st := c.State()
	assert.Equal(t, session.StageProblemAnalysis, st.Stage)
	assert.Equal(t, msgTransitionFailed, st.Err)
	assert.False(t, st.Transitioning)
}

func TestTransition_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{"business message", &api.BusinessError{Message: "Already at the last learning stage."}, "Already at the last learning stage."},
		{"business without message", &api.BusinessError{}, msgTransitionFailed},
		{"server error", &api.HTTPError{Status: 500, Detail: "Traceback ..."}, msgTransitionFailed},
		{"transport", &api.TransportError{Op: "POST"}, msgTransitionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAPI()
			f.next = func(context.Context, string) (*api.TransitionResponse, error) { return nil, tt.err }
			c := newFakeCoordinator(t, f)
			startFake(t, c)
			before := c.State()

			require.Error(t, c.TransitionToNextStage(ctx))
			st := c.State()
			assert.Equal(t, tt.wantErr, st.Err)
			assert.Equal(t, before.Stage, st.Stage)
			assert.Equal(t, before.Messages, st.Messages)
			assert.False(t, st.Transitioning)
		})
	}
}

func TestTransition_ExpiredConfirmed(t *testing.T) {
	var asked atomic.Int32
	env := newLive(t, func(o *Options) {
		o.Confirmer = ConfirmFunc(func(_ context.Context, prompt string) bool {
			asked.Add(1)
			assert.Equal(t, PromptSessionExpired, prompt)
			return true
		})
	})
	require.True(t, env.dev.Expire(env.id()))

	err := env.coord.TransitionToNextStage(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), asked.Load())

	st := env.coord.State()
	assert.False(t, st.Active())
	assert.Empty(t, st.Messages)
	assert.Empty(t, st.Err)
	assert.False(t, st.Transitioning)
}

func TestTransition_ExpiredDeclined(t *testing.T) {
	env := newLive(t)
	id := env.id()
	require.True(t, env.dev.Expire(id))

	err := env.coord.TransitionToNextStage(ctx)
	require.ErrorIs(t, err, ErrSessionExpired)

	st := env.coord.State()
	assert.Equal(t, id, st.SessionID)
	assert.Equal(t, msgSessionExpired, st.Err)
	assert.False(t, st.Transitioning)
}

func TestCompleteLearning_OnlyInLastStage(t *testing.T) {
	env := newLive(t)
	c := env.coord

	require.ErrorIs(t, c.CompleteLearning(ctx), ErrNotLastStage)
	assert.False(t, c.State().LearningCompleted)

	for range 4 {
		require.NoError(t, c.TransitionToNextStage(ctx))
	}
	require.NoError(t, c.RequestChallenge(ctx))
	require.NoError(t, c.CompleteLearning(ctx))

	st := c.State()
	assert.True(t, st.LearningCompleted)
	assert.Nil(t, st.Challenge)
	assert.False(t, st.Streaming)
	last, _ := st.LastMessage()
	assert.Equal(t, session.KindSummary, last.Kind)
	assert.Contains(t, last.Text, "reverse a linked list")

	require.ErrorIs(t, c.CompleteLearning(ctx), ErrAlreadyCompleted)
	require.ErrorIs(t, c.TransitionToNextStage(ctx), ErrAlreadyCompleted)
}

func TestCompleteLearning_Failure(t *testing.T) {
	f := newFakeAPI()
	f.complete = func(context.Context, string) (*api.CompleteResponse, error) {
		return nil, &api.BusinessError{Message: "Please complete all learning stages before summarizing."}
	}
	c := newFakeCoordinator(t, f)
	startFake(t, c)
	c.Store().Update(session.SetStage(session.StageReflection))

	require.Error(t, c.CompleteLearning(ctx))
	st := c.State()
	assert.False(t, st.LearningCompleted)
	assert.False(t, st.Streaming)
	assert.False(t, st.Transitioning)
	assert.Equal(t, "Please complete all learning stages before summarizing.", st.Err)

	f.complete = nil
	require.NoError(t, c.CompleteLearning(ctx))
	st = c.State()
	assert.True(t, st.LearningCompleted)
	assert.Empty(t, st.Err)
}
