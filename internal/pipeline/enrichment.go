package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// enrichOperators runs POS and expansion detection for high-priority
// operators and patches the results onto them.
func (p *Pipeline) enrichOperators(ctx context.Context, rs *runState) (*model.PhaseResult, error) {
	ops, err := p.deps.Store.ListQualifiedOperators(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bonus enrichment: list operators")
	}

	maxPriority := p.cfg.MultiLocation.HighPriorityMax
	if maxPriority <= 0 {
		maxPriority = 5
	}
	var targets []model.Operator
	for _, op := range ops {
		cat, ok := p.deps.Categories.Lookup(string(op.Category))
		if ok && cat.Enabled && cat.Priority <= maxPriority {
			targets = append(targets, op)
		}
	}

	patches := make([]*model.OperatorPatch, len(targets))
	now := p.now()
	g := new(errgroup.Group)
	g.SetLimit(max(p.cfg.Run.Concurrency, 1))
	for i, op := range targets {
		g.Go(func() error {
			patches[i] = p.enrichOne(ctx, rs, op, now)
			return nil
		})
	}
	_ = g.Wait()

	patched, signals := 0, 0
	for i, patch := range patches {
		if patch == nil {
			continue
		}
		if err := p.deps.Store.PatchOperator(ctx, targets[i].ID, *patch); err != nil {
			rs.errs.addf(StageBonusEnrichment, "patch %s: %v", targets[i].CompanyName, err)
			continue
		}
		patched++
		signals += len(patch.ExpansionSignals)
	}
	rs.hist.ExpansionSignalsDetected = signals

	return &model.PhaseResult{
		Metadata: map[string]any{
			"targets":           len(targets),
			"patched":           patched,
			"expansion_signals": signals,
		},
	}, nil
}

// enrichOne returns the patch for op, or nil when neither detector
// produced anything new.
func (p *Pipeline) enrichOne(ctx context.Context, rs *runState, op model.Operator, now time.Time) *model.OperatorPatch {
	patch := model.OperatorPatch{
		POSSystem:        op.POSSystem,
		POSConfidence:    op.POSConfidence,
		ExpansionSignals: op.ExpansionSignals,
		ExpansionScore:   op.ExpansionScore,
	}
	changed := false

	if op.Website != "" && p.deps.POS != nil {
		pos := p.deps.POS.DetectSite(ctx, op.Website)
		switch {
		case pos.Outcome == enrich.OutcomeFailed:
			rs.errs.addf(StageBonusEnrichment, "pos %s: %v", op.CompanyName, pos.Err)
		case pos.Found():
			patch.POSSystem = pos.Value.System
			patch.POSConfidence = pos.Value.Confidence
			changed = true
		}
	}

	if p.deps.Expansion != nil {
		exp := p.deps.Expansion.DetectOperator(ctx, op.CompanyName, enrich.ExpansionInputs{}, now)
		switch exp.Outcome {
		case enrich.OutcomeFailed:
			rs.errs.addf(StageBonusEnrichment, "expansion %s: %v", op.CompanyName, exp.Err)
		default:
			patch.ExpansionSignals = exp.Value.Signals
			patch.ExpansionScore = exp.Value.Score
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return &patch
}
