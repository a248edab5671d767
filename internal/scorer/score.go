package scorer

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/lead-pipeline/internal/model"
)

const (
	baseScore = 50
	month     = 30 * 24 * time.Hour

	// unknownAgeMonths is assumed when the filing date is missing or unreadable.
	unknownAgeMonths = 24.0
)

// Score rates entity for layer as of now, in [0, 100]. It is deterministic
// for a fixed now.
func Score(e model.RawEntity, layer model.Layer, now time.Time) int {
	age := unknownAgeMonths
	if filed, ok := e.FiledAt(); ok {
		age = float64(now.Sub(filed)) / float64(month)
	}

	score := baseScore
	switch {
	case age <= 6:
		score += 20
	case age <= 12:
		score += 12
	case age <= 18:
		score += 6
	}

	hasAddress := strings.TrimSpace(e.PhysicalAddress) != ""
	locations := 1
	if e.Locations != nil {
		locations = *e.Locations
	}

	switch layer {
	case model.LayerEstablished:
		switch {
		case locations >= 5:
			score += 20
		case locations >= 3:
			score += 12
		}
		if e.DBACount != nil && *e.DBACount > 1 {
			score += 8
		}
	case model.LayerNew:
		if age <= 3 {
			score += 15
		}
		if hasAddress {
			score += 10
		}
		if locations == 1 {
			score += 8
		}
	}

	if !hasAddress {
		score -= 20
	}
	if !e.IsActive() {
		score -= 30
	}

	return min(max(score, 0), 100)
}

// Scorer scores entities against an injectable clock.
type Scorer struct {
	Now        func() time.Time
	Thresholds Thresholds
}

// New returns a Scorer on the wall clock.
func New(th Thresholds) *Scorer {
	return &Scorer{Now: time.Now, Thresholds: th}
}

// Score rates a single entity.
func (s *Scorer) Score(e model.RawEntity, layer model.Layer) int {
	return Score(e, layer, s.now())
}

// Qualify scores entities and returns those meeting the layer threshold,
// highest score first. Equal scores keep input order.
func (s *Scorer) Qualify(entities []model.RawEntity, layer model.Layer, source string) []model.ScoredLead {
	now := s.now()
	floor := s.Thresholds.For(layer)

	var out []model.ScoredLead
	for _, e := range entities {
		sc := Score(e, layer, now)
		if sc < floor {
			continue
		}
		out = append(out, model.ScoredLead{
			RawEntity: e,
			Source:    source,
			Layer:     layer,
			Score:     sc,
			CreatedAt: now.UTC(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (s *Scorer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
