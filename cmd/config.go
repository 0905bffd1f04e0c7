package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/codecoach/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		w := cmd.OutOrStdout()
		if p, err := config.DefaultPath(); err == nil {
			fmt.Fprintf(w, "# default config file: %s\n", p)
		}
		_, err = w.Write(out)
		return err
	},
}
