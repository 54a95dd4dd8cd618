package main

import (
	"github.com/spf13/cobra"
)

func ingestCMD(cfgPath *string) *cobra.Command {
	var dir string
	var ingest = &cobra.Command{
		Use:   "ingest",
		Short: "Re-index the knowledge corpus",
		Long:  "Scans the corpus directory, embeds every document and replaces the knowledge index wholesale.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if dir == "" {
				dir = cfg.Knowledge.CorpusDir
			}
			report, err := a.knowledge.Ingest(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	ingest.Flags().StringVar(&dir, "dir", "", "corpus directory (default knowledge.corpus_dir)")
	return ingest
}
