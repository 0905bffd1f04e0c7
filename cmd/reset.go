package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/codecoach/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset [session-id]",
	Short: "Delete recorded session history",
	Long: `Delete one recorded session, or with --all every recorded session.
Sessions on the backend are not affected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return errors.New("give a session id or --all")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		if all {
			n, err := db.Purge(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Deleted %d sessions.\n", n)
			return nil
		}

		rec, err := db.FindSession(ctx, args[0])
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("no session matches %q", args[0])
		case errors.Is(err, store.ErrAmbiguous):
			return fmt.Errorf("%q matches several sessions; use more characters", args[0])
		case err != nil:
			return err
		}
		if err := db.DeleteSession(ctx, rec.ID); err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted session %s.\n", shortID(rec.ID))
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("all", false, "Delete every recorded session")
}
