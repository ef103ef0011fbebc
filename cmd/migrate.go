package cmd

import (
	"example.com/lifeline/agent/config"
	"example.com/lifeline/agent/internal/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run local store migrations",
	Long: `Creates or updates the local store schema. serve and sync run
migrations on startup as well; this command exists for provisioning a
device ahead of first use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return err
		}

		if _, err := database.Open(cfg.DB); err != nil {
			return err
		}

		log.Info().Msg("Migrations completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
