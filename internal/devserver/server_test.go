package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/stream"
)

func newTestServer(t *testing.T) (*Server, *api.Client, string) {
	t.Helper()
	dev := New(Options{})
	srv := httptest.NewServer(dev)
	t.Cleanup(srv.Close)
	c, err := api.NewClient(srv.URL)
	require.NoError(t, err)

	resp, err := c.StartSession(context.Background(), api.StartRequest{
		Problem: "reverse a linked list", Language: "Python", SkillLevel: "beginner", Model: "m",
	})
	require.NoError(t, err)
	return dev, c, resp.SessionID
}

func TestStartSession(t *testing.T) {
	dev, _, id := newTestServer(t)
	assert.Len(t, id, 36)
	st, ok := dev.Stage(id)
	require.True(t, ok)
	assert.Equal(t, session.StageProblemAnalysis, st)
}

func TestStartSession_RequiresProblem(t *testing.T) {
	_, c, _ := newTestServer(t)
	_, err := c.StartSession(context.Background(), api.StartRequest{Language: "Go"})
	var he *api.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnprocessableEntity, he.Status)
	assert.Equal(t, "field required", he.Detail)
}

func TestStageWalk(t *testing.T) {
	_, c, id := newTestServer(t)
	ctx := context.Background()

	_, err := c.Complete(ctx, id)
	var be *api.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "Please complete all learning stages before summarizing.", be.Message)

	want := session.Stages()[1:]
	for i, st := range want {
		resp, err := c.NextStage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, string(st), resp.NewStage)
		assert.Equal(t, i+1, resp.StageIndex)
		assert.Equal(t, 5, resp.TotalStages)
		assert.Equal(t, st.IsLast(), resp.IsLastStage)
		assert.NotEmpty(t, resp.TransitionMessage)
	}

	_, err = c.NextStage(ctx, id)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "Already at the last learning stage.", be.Message)

	status, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, status.CanComplete)
	assert.False(t, status.CanTransitionNext)

	done, err := c.Complete(ctx, id)
	require.NoError(t, err)
	assert.True(t, done.LearningCompleted)
	assert.Contains(t, done.Summary, "reverse a linked list")

	status, err = c.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, status.LearningCompleted)
	assert.False(t, status.CanComplete)
}

func TestExpire(t *testing.T) {
	dev, c, id := newTestServer(t)
	require.True(t, dev.Expire(id))
	assert.False(t, dev.Expire(id))

	_, err := c.NextStage(context.Background(), id)
	assert.True(t, api.IsSessionExpired(err))
	assert.Equal(t, "Session not found.", api.Message(err, ""))
}

func TestExplainAndHint(t *testing.T) {
	_, c, id := newTestServer(t)
	ctx := context.Background()

	ex, err := c.Explain(ctx, id, "big O/notation")
	require.NoError(t, err)
	assert.Contains(t, ex.Explanation, "**big O/notation**")

	h, err := c.Hint(ctx, id, "where do I start")
	require.NoError(t, err)
	assert.Contains(t, h.Hint, "where do I start")

	_, err = c.Hint(ctx, id, "  ")
	var be *api.BusinessError
	require.ErrorAs(t, err, &be)
}

func TestExplain_ConceptEscaping(t *testing.T) {
	_, c, id := newTestServer(t)
	for _, concept := range []string{"big O", "a/b", "100% coverage", "50%/50% split"} {
		t.Run(concept, func(t *testing.T) {
			ex, err := c.Explain(context.Background(), id, concept)
			require.NoError(t, err)
			assert.Contains(t, ex.Explanation, "**"+concept+"**")
		})
	}
}

func TestChallengeCheck(t *testing.T) {
	_, c, id := newTestServer(t)
	ctx := context.Background()

	_, err := c.CheckChallenge(ctx, id, "B")
	var be *api.BusinessError
	require.ErrorAs(t, err, &be)

	data, err := c.Challenge(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "B", data.CorrectAnswer)
	view := session.ParseChallenge(data.Challenge)
	require.Len(t, view.Options, 4)
	assert.Equal(t, "The inputs, outputs and constraints", view.Options[1].Text)

	tests := []struct {
		answer string
		ok     bool
	}{
		{"b", true},
		{"(B)", true},
		{"the inputs, outputs and constraints", true},
		{"A", false},
		{"", false},
	}
	for _, tt := range tests {
		res, err := c.CheckChallenge(ctx, id, tt.answer)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, res.IsCorrect, tt.answer)
		if tt.ok {
			assert.NotEmpty(t, res.Explanation)
		}
	}
}

func TestFeedback(t *testing.T) {
	dev := New(Options{})
	srv := httptest.NewServer(dev)
	defer srv.Close()
	ctx := context.Background()

	for _, v2 := range []bool{false, true} {
		c, err := api.NewClient(srv.URL, api.WithFeedbackV2(v2))
		require.NoError(t, err)
		start, err := c.StartSession(ctx, api.StartRequest{Problem: "p", Language: "Go"})
		require.NoError(t, err)

		fb, err := c.Feedback(ctx, start.SessionID, "func f() int {\n\treturn 1\n}")
		require.NoError(t, err)
		assert.Contains(t, fb.Text(), "3 lines of Go")
		if v2 {
			assert.Equal(t, "static", fb.AnalysisType)
		}
	}
}

func TestChatStreamsWords(t *testing.T) {
	dev := New(Options{ChunkDelay: time.Millisecond})
	srv := httptest.NewServer(dev)
	defer srv.Close()

	c, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start, err := c.StartSession(ctx, api.StartRequest{Problem: "p"})
	require.NoError(t, err)

	tmpl, err := stream.URLFromBase(srv.URL)
	require.NoError(t, err)
	d, err := stream.NewWSDialer(tmpl)
	require.NoError(t, err)
	conn, err := d.Dial(ctx, start.SessionID)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.Send(ctx, "I would use a loop"))
	var (
		b      strings.Builder
		chunks int
	)
	for {
		f, err := conn.Read(ctx)
		require.NoError(t, err)
		if f.Type == stream.FrameEnd {
			break
		}
		require.Equal(t, stream.FrameChunk, f.Type)
		b.WriteString(f.Content)
		chunks++
	}
	assert.Equal(t, reply(session.StageProblemAnalysis, "I would use a loop"), b.String())
	assert.Greater(t, chunks, 1)
}

func TestChatUnknownSession(t *testing.T) {
	srv := httptest.NewServer(New(Options{}))
	defer srv.Close()

	tmpl, err := stream.URLFromBase(srv.URL)
	require.NoError(t, err)
	d, err := stream.NewWSDialer(tmpl)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, "missing")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	f, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, stream.Error("Invalid session ID. Please restart."), f)
	_, err = conn.Read(ctx)
	assert.ErrorIs(t, err, stream.ErrServerClosed)
}

func TestWords(t *testing.T) {
	text := "one two  three"
	assert.Equal(t, text, strings.Join(words(text), ""))
	assert.Equal(t, []string{"one ", "two ", " ", "three"}, words(text))
}
