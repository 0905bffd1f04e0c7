package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
)

// ExplainPrompt is the user message recorded for a concept explanation.
func ExplainPrompt(concept string) string {
	return fmt.Sprintf("Please explain the concept of %q.", concept)
}

// HintPrompt is the user message recorded for a hint request.
func HintPrompt(query string) string {
	return "I'm stuck and need a hint: " + query
}

// FeedbackPrompt is the user message recorded for a code review request.
func FeedbackPrompt(language, code string) string {
	return fmt.Sprintf("I have completed the code, please give me some feedback:\n```%s\n%s\n```",
		strings.ToLower(language), code)
}

// ask runs one auxiliary request: it records prompt as a user message,
// calls fn with the session id and appends the reply as an AI message of
// the same kind.
func (c *Coordinator) ask(ctx context.Context, kind session.Kind, prompt, fallback string, fn func(ctx context.Context, sessionID string) (string, error)) error {
	t, err := c.begin(requireReady, session.AddMessage(session.UserMessage(kind, prompt), c.store.Now()))
	if err != nil {
		return err
	}
	text, err := fn(ctx, t.sessionID)
	if err != nil {
		return c.fail(ctx, t, err, fallback, nil)
	}
	return c.finish(t, session.AddMessage(session.AIMessage(kind, text), c.store.Now()))
}

// ExplainConcept asks the tutor to explain concept.
func (c *Coordinator) ExplainConcept(ctx context.Context, concept string) error {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return ErrEmptyInput
	}
	return c.ask(ctx, session.KindExplanation, ExplainPrompt(concept), msgExplainFailed,
		func(ctx context.Context, id string) (string, error) {
			resp, err := c.api.Explain(ctx, id, concept)
			if err != nil {
				return "", err
			}
			return resp.Explanation, nil
		})
}

// RequestHint asks the tutor for a hint about query.
func (c *Coordinator) RequestHint(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ErrEmptyInput
	}
	return c.ask(ctx, session.KindHint, HintPrompt(query), msgHintFailed,
		func(ctx context.Context, id string) (string, error) {
			resp, err := c.api.Hint(ctx, id, query)
			if err != nil {
				return "", err
			}
			return resp.Hint, nil
		})
}

// RequestCodeFeedback submits code for review. Like a chat reply it
// blocks further input until it settles.
func (c *Coordinator) RequestCodeFeedback(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrEmptyInput
	}
	t, err := c.begin(func(st session.State) error {
		if err := requireReady(st); err != nil {
			return err
		}
		if st.Streaming {
			return ErrBusy
		}
		return nil
	}, func(st session.State) session.State {
		msg := session.UserMessage(session.KindFeedback, FeedbackPrompt(st.Language, code))
		return session.Chain(
			session.AddMessage(msg, c.store.Now()),
			session.SetStreaming(true),
			session.SetError(""),
		)(st)
	})
	if err != nil {
		return err
	}

	resp, err := c.api.Feedback(ctx, t.sessionID, code)
	done := session.SetStreaming(false)
	if err != nil {
		return c.fail(ctx, t, err, msgFeedbackFailed, done)
	}
	return c.finish(t, session.Chain(done,
		session.AddMessage(session.AIMessage(session.KindFeedback, resp.Text()), c.store.Now()),
	))
}

// RequestChallenge fetches a mini-challenge, replacing any active one. On
// failure the active challenge is cleared.
func (c *Coordinator) RequestChallenge(ctx context.Context) error {
	t, err := c.begin(requireReady, nil)
	if err != nil {
		return err
	}
	data, err := c.api.Challenge(ctx, t.sessionID)
	if err != nil {
		return c.fail(ctx, t, err, msgChallengeFailed, session.SetChallenge(nil))
	}
	return c.finish(t, session.SetChallenge(&session.Challenge{
		Question:      data.Challenge,
		CorrectAnswer: data.CorrectAnswer,
		Explanation:   data.Explanation,
	}))
}

// CheckChallengeAnswer submits answer for the active challenge. The
// result belongs to the challenge view; neither the transcript nor the
// error slot changes.
func (c *Coordinator) CheckChallengeAnswer(ctx context.Context, answer string) (*api.CheckResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyInput
	}
	st := c.store.State()
	if !st.Ready() {
		return nil, ErrNoSession
	}
	if st.Challenge == nil {
		return nil, ErrNoChallenge
	}
	return c.api.CheckChallenge(ctx, st.SessionID, answer)
}

// CloseChallenge dismisses the active challenge.
func (c *Coordinator) CloseChallenge() {
	c.store.Update(session.SetChallenge(nil))
}
