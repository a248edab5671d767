package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/pipeline"
	"github.com/sells-group/lead-pipeline/internal/registry"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Scrape one registry layer, score it and store qualified leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		layerFlag, _ := cmd.Flags().GetString("layer")
		stateFlag, _ := cmd.Flags().GetString("state")
		asJSON, _ := cmd.Flags().GetBool("json")

		layer := model.Layer(layerFlag)
		if !layer.Valid() {
			return eris.Errorf("invalid --layer %q (want est or new)", layerFlag)
		}
		state, err := registry.ParseState(stateFlag)
		if err != nil {
			return err
		}

		if err := cfg.Validate("leads"); err != nil {
			return err
		}
		sc, err := newScorer()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := newMetrics()
		runner := pipeline.NewLeadRunner(st, newScraper(newFetcher(m)), sc, cfg.Leads, m)
		res, err := runner.Run(ctx, layer, state)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatLeadRun(os.Stdout, res)
		return nil
	},
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		layer, _ := cmd.Flags().GetString("layer")
		minScore, _ := cmd.Flags().GetInt("min-score")
		limit, _ := cmd.Flags().GetInt("limit")

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(ctx, model.LeadFilter{Layer: model.Layer(layer), MinScore: minScore, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "leads list")
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

func init() {
	leadsCmd.Flags().String("layer", "est", "lead layer: est or new")
	leadsCmd.Flags().String("state", "FL", "registry state: FL, GA or AL")
	leadsCmd.Flags().Bool("json", false, "print the result as JSON")

	leadsListCmd.Flags().String("layer", "", "filter by layer (est, new)")
	leadsListCmd.Flags().Int("min-score", 0, "minimum score")
	leadsListCmd.Flags().Int("limit", 50, "max number of leads to display")

	leadsCmd.AddCommand(leadsListCmd)
	rootCmd.AddCommand(leadsCmd)
}

// formatLeadRun writes the run counts followed by the qualified leads.
func formatLeadRun(out io.Writer, res *pipeline.LeadRunResult) {
	_, _ = fmt.Fprintf(out, "Layer %s / %s: %d scraped, %d duplicates, %d qualified, %d saved\n",
		res.Layer, res.State, res.Scraped, res.Duplicates, res.Qualified, res.Saved)
	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(out, "  error: %s\n", e)
	}
	if len(res.Leads) > 0 {
		_, _ = fmt.Fprintln(out)
		formatLeads(out, res.Leads)
	}
}

// formatLeads writes a tabular list of leads to out.
func formatLeads(out io.Writer, leads []model.ScoredLead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tENTITY\tSOURCE\tLAYER\tFILED\tADDRESS")
	_, _ = fmt.Fprintln(w, "-----\t------\t------\t-----\t-----\t-------")
	for _, l := range leads {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			l.Score, truncate(l.EntityName, 40), l.Source, l.Layer, l.FilingDate, truncate(l.PhysicalAddress, 40))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
