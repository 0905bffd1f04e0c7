package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/codecoach/internal/app"
	"github.com/abhisek/codecoach/internal/screens/setup"
)

// runApp builds dependencies and launches the TUI.
func runApp(cmd *cobra.Command) error {
	confirmer := app.NewConfirmer()
	d, err := buildDeps(cmd, confirmer)
	if err != nil {
		return err
	}
	defer d.Close()

	return app.Run(cmd.Context(), app.Options{
		Coach:   d.coach,
		Journal: d.db,
		Defaults: setup.Defaults{
			Problem:    problemFlag(cmd),
			Language:   d.cfg.Language,
			SkillLevel: d.cfg.SkillLevel,
			Model:      d.cfg.Model,
		},
		Confirmer: confirmer,
		Logger:    d.logger,
	})
}
