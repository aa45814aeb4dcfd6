package cli

import (
	"fmt"
	"os"

	"github.com/millwright-ai/millwright/internal/config"
	"github.com/millwright-ai/millwright/internal/plant"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [path]",
		Short: "Index plant documents so tools can search them",
		Long: "Parses markdown manuals and procedures into the plant database.\n" +
			"With no argument it indexes the documents directory under the data dir.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			plantStore, err := plant.Open(cfg.PlantDBPath())
			if err != nil {
				return err
			}
			defer plantStore.Close()

			path := cfg.DocumentsDir()
			if len(args) == 1 {
				path = args[0]
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat ingest path %q: %w", path, err)
			}

			var results []plant.IngestResult
			if info.IsDir() {
				results, err = plantStore.IngestDir(cmd.Context(), path)
			} else {
				var result *plant.IngestResult
				result, err = plantStore.IngestFile(cmd.Context(), path)
				if result != nil {
					results = append(results, *result)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, result := range results {
				fmt.Fprintf(out, "%s: %q (%s, %d sections)\n", result.Path, result.Title, result.DocType, result.Sections)
			}
			fmt.Fprintf(out, "indexed %d documents\n", len(results))
			return nil
		},
	}
}
