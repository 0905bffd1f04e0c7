package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/codecoach/internal/devserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Serve a scripted tutor backend for offline use",
	Long: `Run a stand-in for the tutoring backend. It implements the same HTTP and
websocket API with canned replies, which is enough to exercise the client
without an LLM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, flush, err := newLogger(cmd)
		if err != nil {
			return err
		}
		defer flush()

		addr := cfg.DevServer.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		srv := devserver.New(devserver.Options{
			ChunkDelay: cfg.DevServer.ChunkDelay,
			Logger:     logger.Named("devserver"),
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Scripted tutor listening on %s (Ctrl+C to stop)\n", addr)
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	devserverCmd.Flags().String("addr", "", "Listen address (default from config, :8000)")
}
