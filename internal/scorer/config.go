// Package scorer rates registry entities as sales leads and removes ones
// already known.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Thresholds are the minimum scores for a lead to qualify, per layer.
type Thresholds struct {
	Established int
	New         int
}

// DefaultThresholds returns est ≥55, new ≥50.
func DefaultThresholds() Thresholds {
	return Thresholds{Established: 55, New: 50}
}

// For returns the threshold for layer.
func (t Thresholds) For(layer model.Layer) int {
	if layer == model.LayerNew {
		return t.New
	}
	return t.Established
}

// Validate checks both thresholds are within the score range.
func (t Thresholds) Validate() error {
	var errs []string
	for name, v := range map[string]int{"est_threshold": t.Established, "new_threshold": t.New} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", name))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}
