package main

import (
	"fmt"

	"github.com/mohammad-safakhou/aeoengine/internal/runtime"
	srv "github.com/mohammad-safakhou/aeoengine/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var knowledgeDir string
	var target string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Run database migrations.

The records schema lives in --dir. The pgvector knowledge index schema lives
in --knowledge-dir and needs the vector extension; with --target all a server
without pgvector only skips the knowledge schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			switch target {
			case "all", "records", "knowledge":
			default:
				return fmt.Errorf("unknown target: %s", target)
			}
			if target != "knowledge" {
				dsn, err := runtime.BuildPostgresDSN(cfg)
				if err != nil {
					return err
				}
				if err := srv.Migrate(migDir, dsn, direction, steps); err != nil {
					return err
				}
				logger.Info("record migrations applied", "direction", direction, "steps", steps)
			}
			if target != "records" {
				kdsn, err := runtime.KnowledgeDSN(cfg)
				if err != nil {
					return err
				}
				if err := srv.MigrateKnowledge(cmd.Context(), knowledgeDir, kdsn, direction, steps); err != nil {
					if target == "knowledge" {
						return err
					}
					logger.Warn("knowledge migrations not applied", "error", err)
					return nil
				}
				logger.Info("knowledge migrations applied", "direction", direction, "steps", steps)
			}
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", srv.DefaultMigrationsDir, "records migrations source")
	migrate.Flags().StringVar(&knowledgeDir, "knowledge-dir", srv.DefaultKnowledgeMigrationsDir, "knowledge index migrations source")
	migrate.Flags().StringVar(&target, "target", "all", "all, records or knowledge")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
