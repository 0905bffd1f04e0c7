package coach

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/stream"
)

// StartSession replaces any current session with a new one. A provisional
// session is visible immediately; it is confirmed with the server-issued
// id and greeting, or dropped with an error if the backend refuses.
func (c *Coordinator) StartSession(ctx context.Context, p StartParams) error {
	if strings.TrimSpace(p.Problem) == "" {
		return ErrEmptyInput
	}
	c.stopStream()

	info := session.Info{Problem: p.Problem, Language: p.Language, SkillLevel: p.SkillLevel, Model: p.Model}
	st := c.store.Update(session.BeginSession(c.opts.ProvisionalID(), info))
	t := ticket{gen: st.Generation, sessionID: st.SessionID}

	resp, err := c.api.StartSession(ctx, api.StartRequest{
		Problem:    p.Problem,
		Language:   p.Language,
		SkillLevel: p.SkillLevel,
		Model:      p.Model,
	})
	if err != nil {
		c.logger.Warn("start session failed", zap.Error(err))
		_ = c.finish(t, session.FailSession(api.Message(err, msgStartFailed)))
		return err
	}

	if err := c.finish(t, session.ConfirmSession(resp.SessionID, resp.Greeting(), c.store.Now())); err != nil {
		return err
	}
	c.logger.Info("session started", zap.String("session_id", resp.SessionID), zap.String("model", p.Model))
	c.startStream(resp.SessionID, t.gen)
	return nil
}

// ResetSession discards the current session and everything derived from it.
func (c *Coordinator) ResetSession() {
	c.stopStream()
	c.store.Reset()
}

// SendMessage appends text as a user message and sends it on the
// streaming channel. The reply arrives as stream frames.
func (c *Coordinator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
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
	}, session.Chain(
		session.AddMessage(session.UserMessage(session.KindChat, text), c.store.Now()),
		session.SetStreaming(true),
	))
	if err != nil {
		return err
	}

	sup := c.supervisor(t.gen)
	if sup == nil {
		err = stream.ErrNotConnected
	} else {
		err = sup.Send(ctx, text)
	}
	if err != nil {
		c.logger.Warn("send failed", zap.String("session_id", t.sessionID), zap.Error(err))
		msg := msgSendFailed
		if errors.Is(err, stream.ErrNotConnected) {
			msg = "Not connected to the tutor. " + msgSendFailed
		}
		_ = c.finish(t, session.Chain(session.SetStreaming(false), session.SetError(msg)))
		return err
	}
	return nil
}

// Refresh reconciles the local stage and completion flag with the
// server's view of the session.
func (c *Coordinator) Refresh(ctx context.Context) error {
	t, err := c.begin(requireReady, nil)
	if err != nil {
		return err
	}
	resp, err := c.api.Status(ctx, t.sessionID)
	if err != nil {
		return c.fail(ctx, t, err, msgStatusFailed, nil)
	}
	stage, err := session.ParseStage(resp.CurrentStage)
	if err != nil {
		c.logger.Warn("status reported unknown stage", zap.String("stage", resp.CurrentStage))
		_ = c.finish(t, session.SetError(msgUnknownStage))
		return err
	}
	fn := session.SetStage(stage)
	if resp.LearningCompleted {
		fn = session.Chain(fn, session.MarkCompleted())
	}
	return c.finish(t, fn)
}

func (c *Coordinator) startStream(sessionID string, gen uint64) {
	if c.dialer == nil {
		return
	}
	sup := stream.NewSupervisor(c.dialer, c.store, sessionID, gen, c.opts.Reconnect, c.logger)
	c.mu.Lock()
	old := c.sup
	c.sup, c.supGen = sup, gen
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	sup.Start(c.baseCtx)
}

func (c *Coordinator) stopStream() {
	c.mu.Lock()
	sup := c.sup
	c.sup = nil
	c.mu.Unlock()
	if sup != nil {
		sup.Close()
	}
}

// stopStreamIf stops the supervisor only if it belongs to generation gen.
func (c *Coordinator) stopStreamIf(gen uint64) {
	c.mu.Lock()
	sup := c.sup
	if sup == nil || c.supGen != gen {
		c.mu.Unlock()
		return
	}
	c.sup = nil
	c.mu.Unlock()
	sup.Close()
}

func (c *Coordinator) supervisor(gen uint64) *stream.Supervisor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.supGen != gen {
		return nil
	}
	return c.sup
}
