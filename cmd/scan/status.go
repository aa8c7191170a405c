package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wuwabuilds/scan-worker/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the persisted status and result of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.PersistenceEnabled() {
		return fmt.Errorf("DATABASE_URL is not set; job status is only kept in PostgreSQL")
	}

	pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	rec, err := pg.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
