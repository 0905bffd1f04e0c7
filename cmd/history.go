package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions or print one transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		show, _ := cmd.Flags().GetString("show")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if show != "" {
			return printTranscript(cmd, db, show)
		}

		ctx := cmd.Context()
		sessions, err := db.ListSessions(ctx, limit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		w := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No sessions recorded.")
			return nil
		}

		fmt.Fprintf(w, "%-8s  %-16s  %-10s  %-22s  %s\n", "ID", "Started", "Language", "Stage", "Problem")
		fmt.Fprintln(w, strings.Repeat("─", 90))
		for _, rec := range sessions {
			stage := stageTitle(rec.Stage)
			if rec.Completed() {
				stage = "✓ " + stage
			}
			fmt.Fprintf(w, "%-8s  %-16s  %-10s  %-22s  %s\n",
				shortID(rec.ID),
				rec.StartedAt.Local().Format("2006-01-02 15:04"),
				rec.Language,
				stage,
				clip(rec.Problem, 40),
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of sessions to list")
	historyCmd.Flags().String("show", "", "Print the transcript of the session with this id or prefix")
}

func printTranscript(cmd *cobra.Command, db *store.Store, ref string) error {
	ctx := cmd.Context()
	rec, err := db.FindSession(ctx, ref)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("no session matches %q", ref)
	case errors.Is(err, store.ErrAmbiguous):
		return fmt.Errorf("%q matches several sessions; use more characters", ref)
	case err != nil:
		return err
	}
	events, err := db.Transcript(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	w := cmd.OutOrStdout()
	sep := strings.Repeat("─", 60)
	fmt.Fprintf(w, "ID:        %s\n", rec.ID)
	fmt.Fprintf(w, "Server ID: %s\n", rec.ServerID)
	fmt.Fprintf(w, "Started:   %s\n", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Language:  %s (%s)\n", rec.Language, rec.SkillLevel)
	if rec.Model != "" {
		fmt.Fprintf(w, "Model:     %s\n", rec.Model)
	}
	fmt.Fprintf(w, "Problem:   %s\n", rec.Problem)
	fmt.Fprintln(w, sep)

	for _, ev := range events {
		switch ev.Kind {
		case store.EventStage:
			fmt.Fprintf(w, "\n── %s ──\n", stageTitle(ev.Stage))
		case store.EventCompleted:
			fmt.Fprintln(w, "\n✓ Learning completed")
		case store.EventMessage:
			who := "You"
			if ev.Sender == string(session.SenderAI) {
				who = "Tutor"
			}
			fmt.Fprintf(w, "\n%s [%s]:\n%s\n", who, ev.At.Local().Format("15:04:05"), ev.Text)
		}
	}
	return nil
}

func stageTitle(raw string) string {
	if st, err := session.ParseStage(raw); err == nil {
		return st.Title()
	}
	return raw
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
