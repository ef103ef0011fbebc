package cmd

import (
	"context"
	"os"

	"example.com/lifeline/agent/config"
	"example.com/lifeline/agent/internal/database"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single synchronization cycle",
	Long: `Run one push-then-pull cycle against the remote system and print
the resulting queue counts. Useful for troubleshooting a device in the
field.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}

	deps := buildDeps(cfg, db)

	ctx := context.Background()
	deps.engine.RunCycle(ctx)

	status := deps.engine.Status()
	log.Info().
		Int64("pending", status.Pending).
		Int64("accepted", status.Accepted).
		Int64("rejected", status.Rejected).
		Str("last_error", status.LastError).
		Msg("Cycle finished")

	return nil
}
