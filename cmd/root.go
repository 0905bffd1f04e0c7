package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/codecoach/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "codecoach",
	Short: "Terminal client for the CodeCoach tutor",
	Long: `CodeCoach walks you through a coding problem in five stages: problem
analysis, solution design, implementation, testing and reflection.

Run without arguments for the full-screen interface, or use "codecoach chat"
for a line-oriented session.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file (default $XDG_CONFIG_HOME/codecoach/config.yaml)")
	pf.String("base-url", "", "Tutor backend URL (overrides CODECOACH_BASE_URL)")
	pf.String("db", "", "Path to the history database (overrides CODECOACH_DB)")
	pf.String("log-file", "", "Log file path")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.Bool("no-history", false, "Do not record sessions locally")

	addSessionFlags(rootCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// addSessionFlags registers the flags that preselect session options.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("problem", "", "Problem to work on")
	cmd.Flags().String("language", "", "Programming language")
	cmd.Flags().String("level", "", "Skill level: beginner, intermediate or advanced")
	cmd.Flags().String("model", "", "Model id or alias (claude, gpt-4o, deepseek)")
}

// loadConfig builds the effective configuration: defaults, config file,
// .env, environment, then command-line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("log-file") {
		cfg.Log.File, _ = flags.GetString("log-file")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if off, _ := flags.GetBool("no-history"); off {
		cfg.History = false
	}
	if flags.Changed("language") {
		cfg.Language, _ = flags.GetString("language")
	}
	if flags.Changed("level") {
		cfg.SkillLevel, _ = flags.GetString("level")
	}
	if flags.Changed("model") {
		m, _ := flags.GetString("model")
		cfg.Model = config.ResolveModel(m)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func problemFlag(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("problem")
	return strings.TrimSpace(p)
}
