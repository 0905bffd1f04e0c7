package coach

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
)

// TransitionToNextStage asks the backend to advance the session. The
// announcement is appended as an AI message and the stage moves to the
// one the server reports.
func (c *Coordinator) TransitionToNextStage(ctx context.Context) error {
	t, err := c.begin(func(st session.State) error {
		switch {
		case !st.Ready():
			return ErrNoSession
		case st.Transitioning:
			return ErrTransitionInFlight
		case st.LearningCompleted:
			return ErrAlreadyCompleted
		case st.Stage.IsLast():
			return ErrLastStage
		}
		return nil
	}, session.SetTransitioning(true))
	if err != nil {
		return err
	}

	resp, err := c.api.NextStage(ctx, t.sessionID)
	done := session.SetTransitioning(false)
	if err != nil {
		if api.IsSessionExpired(err) || api.IsCanceled(err) {
			return c.fail(ctx, t, err, msgTransitionFailed, done)
		}
		// Only a success:false reply carries a message worth showing here.
		msg := msgTransitionFailed
		var be *api.BusinessError
		if errors.As(err, &be) && be.Message != "" {
			msg = be.Message
		}
		c.logger.Warn("stage transition failed", zap.String("session_id", t.sessionID), zap.Error(err))
		_ = c.finish(t, session.Chain(done, session.SetError(msg)))
		return err
	}

	stage, perr := session.ParseStage(resp.NewStage)
	if perr != nil {
		c.logger.Warn("transition reported unknown stage", zap.String("stage", resp.NewStage))
		_ = c.finish(t, session.Chain(done, session.SetError(msgTransitionFailed)))
		return perr
	}

	c.logger.Info("stage advanced",
		zap.String("session_id", t.sessionID),
		zap.String("stage", string(stage)),
		zap.Bool("is_last", resp.IsLastStage),
		zap.Int("index", resp.StageIndex),
		zap.Int("total", resp.TotalStages),
	)
	fn := session.Chain(done, session.SetStage(stage))
	if resp.TransitionMessage != "" {
		fn = session.Chain(fn, session.AddMessage(session.AIMessage(session.KindTransition, resp.TransitionMessage), c.store.Now()))
	}
	return c.finish(t, fn)
}

// CompleteLearning finishes the session in its last stage and appends the
// learning summary.
func (c *Coordinator) CompleteLearning(ctx context.Context) error {
	t, err := c.begin(func(st session.State) error {
		switch {
		case !st.Ready():
			return ErrNoSession
		case st.Transitioning:
			return ErrTransitionInFlight
		case st.LearningCompleted:
			return ErrAlreadyCompleted
		case !st.Stage.IsLast():
			return ErrNotLastStage
		case st.Streaming:
			return ErrBusy
		}
		return nil
	}, session.Chain(session.SetTransitioning(true), session.SetStreaming(true), session.SetError("")))
	if err != nil {
		return err
	}

	resp, err := c.api.Complete(ctx, t.sessionID)
	done := session.Chain(session.SetTransitioning(false), session.SetStreaming(false))
	if err != nil {
		return c.fail(ctx, t, err, msgCompleteFailed, done)
	}

	c.logger.Info("learning completed", zap.String("session_id", t.sessionID))
	fn := session.Chain(done, session.MarkCompleted())
	if resp.Summary != "" {
		fn = session.Chain(fn, session.AddMessage(session.AIMessage(session.KindSummary, resp.Summary), c.store.Now()))
	}
	return c.finish(t, fn)
}
