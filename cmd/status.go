package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's progress as the backend sees it",
	Long: `Query the backend for a session's current stage.

The id may be the backend's session id, or a local history id or prefix
as shown by "codecoach history".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, flush, err := newLogger(cmd)
		if err != nil {
			return err
		}
		defer flush()

		ctx := cmd.Context()
		serverID := args[0]
		if cfg.History {
			if db, err := openHistory(cfg); err == nil {
				rec, err := db.FindSession(ctx, args[0])
				switch {
				case err == nil:
					serverID = rec.ServerID
				case errors.Is(err, store.ErrAmbiguous):
					db.Close()
					return fmt.Errorf("%q matches several sessions; use more characters", args[0])
				}
				db.Close()
			} else {
				logger.Warn("history unavailable", zap.Error(err))
			}
		}

		client, err := api.NewClient(cfg.BaseURL, api.WithTimeout(cfg.RequestTimeout), api.WithLogger(logger))
		if err != nil {
			return err
		}
		st, err := client.Status(ctx, serverID)
		if err != nil {
			if api.IsSessionExpired(err) {
				return fmt.Errorf("session %s is unknown to the backend (expired or never existed)", serverID)
			}
			return fmt.Errorf("query status: %w", err)
		}

		title := st.CurrentStage
		if stage, err := session.ParseStage(st.CurrentStage); err == nil {
			title = stage.Title()
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Session:    %s\n", serverID)
		fmt.Fprintf(w, "Stage:      %d/%d %s\n", st.CurrentStageIndex+1, st.TotalStages, title)
		fmt.Fprintf(w, "Last stage: %v\n", st.IsLastStage)
		fmt.Fprintf(w, "Completed:  %v\n", st.LearningCompleted)
		fmt.Fprintf(w, "Can advance: %v  Can complete: %v\n", st.CanTransitionNext, st.CanComplete)
		return nil
	},
}
