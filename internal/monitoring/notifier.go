package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Summary is the payload posted after every pipeline run.
type Summary struct {
	Text string            `json:"text"`
	Run  *model.RunHistory `json:"run"`
}

// Notifier posts a run summary to a webhook.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier returns a notifier. An empty url disables delivery.
func NewNotifier(url string) *Notifier {
	return &Notifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Notify posts the summary for run.
func (n *Notifier) Notify(ctx context.Context, run *model.RunHistory) error {
	if n == nil || n.url == "" || run == nil {
		return nil
	}
	return postJSON(ctx, n.client, n.url, Summary{Text: SummaryText(run), Run: run})
}

// SummaryText renders a one-line human summary of run.
func SummaryText(run *model.RunHistory) string {
	return fmt.Sprintf(
		"Lead pipeline %s: %d operators, %d decision makers, %d synced, %d duplicates, %d expansion signals, %d errors, $%.2f, %ds",
		run.RunDate, run.OperatorsFound, run.DecisionMakersFound, run.Synced, run.Duplicates,
		run.ExpansionSignalsDetected, len(run.Errors), run.CostEstimateUSD, run.DurationSeconds,
	)
}
