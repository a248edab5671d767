package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/cost"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// syncCRM pushes ready-for-outreach contacts to the CRM. Contacts whose
// email already exists there are counted as duplicates and marked synced
// against the existing record.
func (p *Pipeline) syncCRM(ctx context.Context, rs *runState) (*model.PhaseResult, error) {
	if p.deps.CRM == nil {
		return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
	}

	limit := p.cfg.Run.SyncBatchSize
	if limit <= 0 {
		limit = store.DefaultOutreachLimit
	}
	contacts, err := p.deps.Store.ListReadyForOutreach(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "crm sync: list ready for outreach")
	}

	for _, c := range contacts {
		if err := p.syncContact(ctx, rs, c); err != nil {
			rs.errs.addf(StageCRMSync, "%s: %v", c.Email, err)
		}
	}

	return &model.PhaseResult{
		Metadata: map[string]any{
			"contacts":   len(contacts),
			"synced":     rs.hist.Synced,
			"duplicates": rs.hist.Duplicates,
		},
	}, nil
}

func (p *Pipeline) syncContact(ctx context.Context, rs *runState, c model.OutreachContact) error {
	if err := rs.meter.Reserve(cost.ServiceSalesforce); err != nil {
		return err
	}
	existingID, found, err := p.deps.CRM.FindByEmail(ctx, c.Email)
	p.deps.Metrics.ObserveCall(string(cost.ServiceSalesforce), err)
	if err != nil {
		return err
	}
	if found {
		rs.hist.Duplicates++
		rs.log.Debug("pipeline: crm duplicate", zap.String("email", c.Email), zap.String("crm_id", existingID))
		return p.deps.Store.MarkSynced(ctx, c.DecisionMakerID, existingID)
	}

	if err := rs.meter.Reserve(cost.ServiceSalesforce); err != nil {
		return err
	}
	id, err := p.deps.CRM.Create(ctx, c)
	p.deps.Metrics.ObserveCall(string(cost.ServiceSalesforce), err)
	if err != nil {
		return err
	}
	if err := p.deps.Store.MarkSynced(ctx, c.DecisionMakerID, id); err != nil {
		return eris.Wrapf(err, "created %s but could not mark synced", id)
	}
	rs.hist.Synced++
	return nil
}
