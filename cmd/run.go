package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/monitoring"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run multi-location discovery, enrichment and CRM sync once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, newMetrics())
		if err != nil {
			return err
		}
		defer env.Close()

		hist, err := env.Pipeline.Run(ctx)
		if hist != nil {
			if writeErr := writeRunSummary(os.Stdout, hist, runJSON); writeErr != nil {
				return writeErr
			}
		}
		return eris.Wrap(err, "run")
	},
}

// writeRunSummary prints hist as indented JSON or as the notification text.
func writeRunSummary(w io.Writer, hist *model.RunHistory, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hist)
	}
	_, err := fmt.Fprintln(w, monitoring.SummaryText(hist))
	return err
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run history as JSON")
	rootCmd.AddCommand(runCmd)
}
