package app

import (
	"context"
	"sync"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/codecoach/internal/screen"
	"github.com/abhisek/codecoach/internal/session"
)

// bridgeState forwards store changes to send as screen.StateMsg. Bursts
// of updates (stream chunks) coalesce into one message carrying the
// newest snapshot. The returned func stops the bridge.
func bridgeState(st *session.Store, send func(tea.Msg)) func() {
	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	unsubscribe := st.Subscribe(func(session.State) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-wake:
				send(screen.StateMsg{State: st.State()})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
			wg.Wait()
		})
	}
}

// confirmRequestMsg asks the UI to show a yes/no dialog. The reply
// channel is buffered so answering never blocks the UI.
type confirmRequestMsg struct {
	prompt string
	reply  chan bool
}

func (c *confirmRequestMsg) answer(v bool) {
	select {
	case c.reply <- v:
	default:
	}
}

// Confirmer implements coach.Confirmer by raising a dialog in the TUI and
// waiting for the learner's answer. Before the program is attached it
// declines.
type Confirmer struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

// NewConfirmer returns a detached Confirmer.
func NewConfirmer() *Confirmer {
	return &Confirmer{}
}

func (c *Confirmer) attach(send func(tea.Msg)) {
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
}

// ConfirmReset shows prompt and blocks until it is answered or ctx ends.
func (c *Confirmer) ConfirmReset(ctx context.Context, prompt string) bool {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return false
	}

	req := confirmRequestMsg{prompt: prompt, reply: make(chan bool, 1)}
	send(req)
	select {
	case v := <-req.reply:
		return v
	case <-ctx.Done():
		return false
	}
}
