package stream

import (
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/session"
)

// Assembler applies frames to the store on behalf of one session
// generation. Once the store moves to another generation every Apply
// returns session.ErrStale and changes nothing.
type Assembler struct {
	store  *session.Store
	gen    uint64
	logger *zap.Logger
}

// NewAssembler binds an assembler to the session generation gen.
func NewAssembler(store *session.Store, gen uint64, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: store, gen: gen, logger: logger}
}

// Apply folds f into the store. Unknown frame types are ignored.
func (a *Assembler) Apply(f Frame) error {
	var fn session.Update
	switch f.Type {
	case FrameChunk:
		fn = session.Chain(
			session.SetInitializing(false),
			session.SetStreaming(true),
			session.AppendStreamChunk(f.Content, a.store.Now()),
		)
	case FrameEnd:
		fn = session.Chain(
			session.EndStreamTurn(),
			session.SetStreaming(false),
		)
	case FrameError:
		fn = session.Chain(
			session.EndStreamTurn(),
			session.SetError(f.Content),
			session.SetStreaming(false),
			session.SetInitializing(false),
		)
	default:
		a.logger.Debug("ignoring frame", zap.String("type", string(f.Type)))
		return nil
	}
	_, err := a.store.UpdateIf(a.gen, fn)
	return err
}

// Interrupt closes the open turn after the channel dropped mid-reply.
func (a *Assembler) Interrupt() error {
	_, err := a.store.UpdateIf(a.gen, session.Chain(
		session.EndStreamTurn(),
		session.SetStreaming(false),
	))
	return err
}
