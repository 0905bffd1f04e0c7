package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/session"
)

// DefaultQueueSize bounds the journal's pending writes.
const DefaultQueueSize = 256

type journalOp struct {
	name string
	run  func(ctx context.Context, s *Store) error
}

type journalSession struct {
	localID   string
	serverID  string
	stage     session.Stage
	completed bool
	seen      map[int64]bool
}

// Journal persists session snapshots into the Store. Observe is meant to
// be registered with session.Store.Subscribe: it diffs each snapshot
// against what was already recorded and queues the new writes for a
// background worker, so it never blocks the caller. Write failures are
// logged and otherwise ignored.
type Journal struct {
	store  *Store
	logger *zap.Logger
	ops    chan journalOp
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	cur    *journalSession
}

// NewJournal starts a journal writing to store.
func NewJournal(store *Store, logger *zap.Logger, queueSize int) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	j := &Journal{
		store:  store,
		logger: logger,
		ops:    make(chan journalOp, queueSize),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Journal) run() {
	defer close(j.done)
	ctx := context.Background()
	for op := range j.ops {
		if err := op.run(ctx, j.store); err != nil {
			j.logger.Warn("journal write failed", zap.String("op", op.name), zap.Error(err))
		}
	}
}

// Close flushes pending writes and stops the worker.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ops)
	j.mu.Unlock()
	<-j.done
}

// enqueue must be called with j.mu held.
func (j *Journal) enqueue(name string, fn func(ctx context.Context, s *Store) error) {
	if j.closed {
		return
	}
	select {
	case j.ops <- journalOp{name: name, run: fn}:
	default:
		j.logger.Warn("journal queue full, dropping write", zap.String("op", name))
	}
}

// Observe records whatever st adds to the journal: a newly confirmed
// session, completed messages, stage changes and completion. Open
// streamed turns are recorded once they complete.
func (j *Journal) Observe(st session.State) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !st.Ready() {
		j.cur = nil
		return
	}

	if j.cur == nil || j.cur.serverID != st.SessionID {
		j.startSession(st)
	}
	cur := j.cur

	for _, m := range st.Messages {
		if !m.Complete || cur.seen[m.ID] {
			continue
		}
		cur.seen[m.ID] = true
		ev := Event{
			SessionID: cur.localID,
			Kind:      EventMessage,
			Sender:    string(m.Sender),
			MsgKind:   string(m.Kind),
			Text:      m.Text,
			Stage:     string(st.Stage),
			At:        m.At,
		}
		j.enqueue("message", func(ctx context.Context, s *Store) error { return s.AppendEvent(ctx, ev) })
	}

	if st.Stage != cur.stage {
		cur.stage = st.Stage
		id, stage, now := cur.localID, string(st.Stage), time.Now()
		j.enqueue("stage", func(ctx context.Context, s *Store) error {
			if err := s.AppendEvent(ctx, Event{SessionID: id, Kind: EventStage, Stage: stage, At: now}); err != nil {
				return err
			}
			return s.UpdateStage(ctx, id, stage)
		})
	}

	if st.LearningCompleted && !cur.completed {
		cur.completed = true
		id, stage, now := cur.localID, string(st.Stage), time.Now()
		j.enqueue("completed", func(ctx context.Context, s *Store) error {
			if err := s.AppendEvent(ctx, Event{SessionID: id, Kind: EventCompleted, Stage: stage, At: now}); err != nil {
				return err
			}
			return s.MarkCompleted(ctx, id, now)
		})
	}
}

func (j *Journal) startSession(st session.State) {
	j.cur = &journalSession{
		localID:  uuid.NewString(),
		serverID: st.SessionID,
		stage:    st.Stage,
		seen:     make(map[int64]bool),
	}
	started := time.Now()
	if len(st.Messages) > 0 && !st.Messages[0].At.IsZero() {
		started = st.Messages[0].At
	}
	rec := SessionRecord{
		ID:         j.cur.localID,
		ServerID:   st.SessionID,
		Problem:    st.Problem,
		Language:   st.Language,
		SkillLevel: st.SkillLevel,
		Model:      st.Model,
		Stage:      string(st.Stage),
		StartedAt:  started,
	}
	j.logger.Debug("journaling session", zap.String("session_id", st.SessionID), zap.String("local_id", rec.ID))
	j.enqueue("session", func(ctx context.Context, s *Store) error { return s.CreateSession(ctx, rec) })
}
