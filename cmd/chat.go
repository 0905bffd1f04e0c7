package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/session"
)

const chatHelp = `Type a message and press Enter to talk to the tutor. Commands:
  /next              move to the next stage
  /complete          finish learning (last stage only)
  /hint <question>   ask for a hint
  /explain <concept> ask for an explanation
  /feedback <file>   get feedback on the code in file
  /challenge         get a mini-challenge
  /answer <answer>   answer the active challenge
  /status            show the session's progress
  /help              show this help
  /quit              leave`

// connectWait bounds how long line mode waits for the stream to come up.
const connectWait = 10 * time.Second

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a tutoring session in line mode",
	Long:  "Start a session and talk to the tutor line by line.\n\n" + chatHelp,
	RunE:  runChat,
}

func init() {
	addSessionFlags(chatCmd)
	chatCmd.Flags().Bool("plain", false, "Print tutor messages without markdown styling")
	_ = chatCmd.MarkFlagRequired("problem")
}

// lockedWriter serializes writes from the printer and the command loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func runChat(cmd *cobra.Command, args []string) error {
	if problemFlag(cmd) == "" {
		return fmt.Errorf("--problem must describe the problem to work on")
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	lines := readLines(ctx, cmd.InOrStdin())

	// The loop is blocked inside the failing action while it asks, so
	// the confirmer can read the answer from the same line stream.
	confirmer := coach.ConfirmFunc(func(ctx context.Context, prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		select {
		case line, ok := <-lines:
			return ok && isYes(line)
		case <-ctx.Done():
			return false
		}
	})

	d, err := buildDeps(cmd, confirmer)
	if err != nil {
		return err
	}
	defer d.Close()

	plain, _ := cmd.Flags().GetBool("plain")
	p := newPrinter(out, markdownRenderer(plain))

	l := &lineSession{coach: d.coach, out: out}
	params := coach.StartParams{
		Problem:    problemFlag(cmd),
		Language:   d.cfg.Language,
		SkillLevel: d.cfg.SkillLevel,
		Model:      d.cfg.Model,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.run(gctx, d.coach.Store())
	})
	g.Go(func() error {
		defer cancel()
		return l.loop(gctx, params, lines)
	})
	return g.Wait()
}

// readLines delivers lines from r until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

func markdownRenderer(plain bool) func(string) string {
	if plain {
		return func(s string) string { return s }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(s string) string { return s }
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.Trim(out, "\n")
	}
}

// lineSession runs one command at a time and waits for each streamed
// reply before reading the next line.
type lineSession struct {
	coach *coach.Coordinator
	out   io.Writer
}

func (l *lineSession) loop(ctx context.Context, params coach.StartParams, lines <-chan string) error {
	if err := l.coach.StartSession(ctx, params); err != nil {
		if msg := l.coach.State().Err; msg != "" {
			return fmt.Errorf("start session: %s", msg)
		}
		return fmt.Errorf("start session: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, connectWait)
	st := waitFor(connCtx, l.coach.Store(), func(s session.State) bool {
		return s.Connection == session.ConnConnected || s.Connection == session.ConnDisconnected
	})
	cancel()
	if st.Connection != session.ConnConnected {
		fmt.Fprintln(l.out, "! Streaming channel is not connected yet; chat replies may fail.")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := l.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
			waitFor(ctx, l.coach.Store(), func(s session.State) bool { return !s.Streaming })
		}
	}
}

// handle runs one input line. It reports whether the learner quit.
func (l *lineSession) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		l.report(l.coach.SendMessage(ctx, line))
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit", "q":
		return true
	case "help":
		fmt.Fprintln(l.out, chatHelp)
	case "next":
		l.report(l.coach.TransitionToNextStage(ctx))
	case "complete":
		l.report(l.coach.CompleteLearning(ctx))
	case "hint":
		l.report(l.coach.RequestHint(ctx, arg))
	case "explain":
		l.report(l.coach.ExplainConcept(ctx, arg))
	case "feedback":
		if arg == "" {
			fmt.Fprintln(l.out, "! usage: /feedback <file>")
			return false
		}
		code, err := os.ReadFile(arg)
		if err != nil {
			fmt.Fprintf(l.out, "! read %s: %v\n", arg, err)
			return false
		}
		l.report(l.coach.RequestCodeFeedback(ctx, string(code)))
	case "challenge":
		if err := l.coach.RequestChallenge(ctx); err != nil {
			l.report(err)
			return false
		}
		if ch := l.coach.State().Challenge; ch != nil {
			l.printChallenge(*ch)
		}
	case "answer":
		res, err := l.coach.CheckChallengeAnswer(ctx, arg)
		switch {
		case err == nil:
			l.printResult(res)
		case coach.IsGuard(err):
			l.report(err)
		case !api.IsCanceled(err):
			fmt.Fprintf(l.out, "! %s\n", api.Message(err, "Could not check your answer."))
		}
	case "status":
		if err := l.coach.Refresh(ctx); err != nil {
			l.report(err)
			return false
		}
		s := l.coach.State()
		fmt.Fprintf(l.out, "Stage %d/%d: %s  (connection: %s, completed: %v)\n",
			s.Stage.Index()+1, len(session.Stages()), s.Stage.Title(), s.Connection, s.LearningCompleted)
	default:
		fmt.Fprintf(l.out, "! unknown command /%s, try /help\n", name)
	}
	return false
}

// report prints guard rejections. Failed requests reach the learner
// through the error slot, which the printer shows.
func (l *lineSession) report(err error) {
	if err != nil && coach.IsGuard(err) {
		fmt.Fprintf(l.out, "! %v\n", err)
	}
}

func (l *lineSession) printChallenge(ch session.Challenge) {
	v := session.ParseChallenge(ch.Question)
	fmt.Fprintln(l.out, "── Mini-challenge ──")
	if v.Prompt != "" {
		fmt.Fprintln(l.out, v.Prompt)
	}
	if v.Code != "" {
		fmt.Fprintf(l.out, "\n%s\n\n", v.Code)
	}
	for _, o := range v.Options {
		fmt.Fprintf(l.out, "  %s) %s\n", o.Label, o.Text)
	}
	fmt.Fprintln(l.out, "Answer with /answer <your answer>")
}

func (l *lineSession) printResult(res *api.CheckResult) {
	if res.IsCorrect {
		fmt.Fprintln(l.out, "✓ Correct!")
	} else {
		fmt.Fprintln(l.out, "✗ Not quite.")
	}
	if res.Feedback != "" {
		fmt.Fprintln(l.out, res.Feedback)
	}
	if res.IsCorrect {
		explanation := res.Explanation
		if explanation == "" {
			if ch := l.coach.State().Challenge; ch != nil {
				explanation = ch.Explanation
			}
		}
		if explanation != "" {
			fmt.Fprintf(l.out, "Explanation: %s\n", explanation)
		}
	}
}

// waitFor blocks until cond holds for the store's state or ctx ends, and
// returns the last state seen.
func waitFor(ctx context.Context, st *session.Store, cond func(session.State) bool) session.State {
	wake := make(chan struct{}, 1)
	unsubscribe := st.Subscribe(func(session.State) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		s := st.State()
		if cond(s) {
			return s
		}
		select {
		case <-ctx.Done():
			return s
		case <-wake:
		}
	}
}

// printer writes transcript changes to out as they happen. Streamed
// turns are printed chunk by chunk; other tutor messages are rendered
// whole.
type printer struct {
	out    io.Writer
	render func(string) string

	gen       uint64
	printed   map[int64]int
	done      map[int64]bool
	stage     session.Stage
	err       string
	conn      session.Connection
	completed bool
}

func newPrinter(out io.Writer, render func(string) string) *printer {
	return &printer{
		out:     out,
		render:  render,
		printed: make(map[int64]int),
		done:    make(map[int64]bool),
	}
}

func (p *printer) run(ctx context.Context, st *session.Store) error {
	wake := make(chan struct{}, 1)
	unsubscribe := st.Subscribe(func(session.State) {
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	p.print(st.State())
	for {
		select {
		case <-ctx.Done():
			p.print(st.State())
			return nil
		case <-wake:
			p.print(st.State())
		}
	}
}

func (p *printer) print(s session.State) {
	if s.Generation != p.gen {
		p.gen = s.Generation
		p.printed = make(map[int64]int)
		p.done = make(map[int64]bool)
		p.stage, p.err, p.completed = "", "", false
	}

	if s.Ready() && s.Stage != p.stage {
		fmt.Fprintf(p.out, "\n── Stage %d/%d: %s ──\n", s.Stage.Index()+1, len(session.Stages()), s.Stage.Title())
		p.stage = s.Stage
	}

	for _, m := range s.Messages {
		if !m.IsAI() || p.done[m.ID] {
			continue
		}
		n := p.printed[m.ID]
		if m.Complete && n == 0 {
			fmt.Fprintf(p.out, "\n%s\n", p.render(m.Text))
			p.done[m.ID] = true
			continue
		}
		if n == 0 {
			fmt.Fprint(p.out, "\n")
		}
		if len(m.Text) > n {
			fmt.Fprint(p.out, m.Text[n:])
			p.printed[m.ID] = len(m.Text)
		}
		if m.Complete {
			fmt.Fprint(p.out, "\n")
			p.done[m.ID] = true
			delete(p.printed, m.ID)
		}
	}

	if s.Connection != p.conn {
		switch s.Connection {
		case session.ConnReconnecting:
			fmt.Fprintln(p.out, "… connection lost, reconnecting")
		case session.ConnDisconnected:
			fmt.Fprintln(p.out, "! disconnected from the tutor")
		case session.ConnConnected:
			if p.conn == session.ConnReconnecting {
				fmt.Fprintln(p.out, "… reconnected")
			}
		}
		p.conn = s.Connection
	}

	if s.Err != p.err {
		if s.Err != "" {
			fmt.Fprintf(p.out, "! %s\n", s.Err)
		}
		p.err = s.Err
	}

	if s.LearningCompleted && !p.completed {
		fmt.Fprintln(p.out, "\n✓ Learning complete. Well done!")
	}
	p.completed = s.LearningCompleted
}
