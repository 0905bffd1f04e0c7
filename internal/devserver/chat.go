package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/stream"
)

// chat serves /ws/chat/{id}. Every inbound text message is answered with
// a reply streamed word by word and closed with an end frame.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer func() { _ = c.CloseNow() }()

	ctx := r.Context()
	s.mu.Lock()
	_, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		_ = wsjson.Write(ctx, c, stream.Error("Invalid session ID. Please restart."))
		_ = c.Close(websocket.StatusNormalClosure, "invalid session")
		return
	}

	logger := s.logger.With(zap.String("session_id", id))
	logger.Debug("chat connected")
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Debug("chat read ended", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		s.mu.Lock()
		ts, ok := s.sessions[id]
		var text string
		if ok {
			ts.turns++
			text = reply(ts.stage, string(data))
		}
		s.mu.Unlock()
		if !ok {
			_ = wsjson.Write(ctx, c, stream.Error("Session expired. Please restart."))
			_ = c.Close(websocket.StatusNormalClosure, "session expired")
			return
		}

		if err := s.streamReply(ctx, c, text); err != nil {
			logger.Debug("chat write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) streamReply(ctx context.Context, c *websocket.Conn, text string) error {
	for _, w := range words(text) {
		if err := wsjson.Write(ctx, c, stream.Chunk(w)); err != nil {
			return err
		}
		if s.opts.ChunkDelay > 0 {
			t := time.NewTimer(s.opts.ChunkDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return wsjson.Write(ctx, c, stream.End())
}
