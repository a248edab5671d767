package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/registry"
	"github.com/sells-group/lead-pipeline/pkg/google"
	"github.com/sells-group/lead-pipeline/pkg/hunter"
)

// memStore is an in-memory store.Store. Fields ending in Err force failures.
type memStore struct {
	mu         sync.Mutex
	operators  []model.Operator
	dms        []model.DecisionMaker
	runs       []model.RunHistory
	leads      []model.ScoredLead
	leadNames  []string
	upsertErr  error
	listOpsErr error
	runErr     error
	saveErr    error
}

func (s *memStore) UpsertOperator(_ context.Context, op *model.Operator) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return "", s.upsertErr
	}
	for i, existing := range s.operators {
		if op.DocumentNumber != "" && existing.DocumentNumber == op.DocumentNumber {
			op.ID = existing.ID
			s.operators[i] = *op
			return op.ID, nil
		}
	}
	op.ID = fmt.Sprintf("op-%d", len(s.operators)+1)
	s.operators = append(s.operators, *op)
	return op.ID, nil
}

func (s *memStore) ListQualifiedOperators(context.Context) ([]model.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listOpsErr != nil {
		return nil, s.listOpsErr
	}
	var out []model.Operator
	for _, op := range s.operators {
		if op.IsQualified {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *memStore) PatchOperator(_ context.Context, id string, p model.OperatorPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.operators {
		if s.operators[i].ID == id {
			s.operators[i].POSSystem = p.POSSystem
			s.operators[i].POSConfidence = p.POSConfidence
			s.operators[i].ExpansionSignals = p.ExpansionSignals
			s.operators[i].ExpansionScore = p.ExpansionScore
			return nil
		}
	}
	return fmt.Errorf("operator %s not found", id)
}

func (s *memStore) UpsertDecisionMaker(_ context.Context, dm *model.DecisionMaker) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.dms {
		if existing.CompanyID == dm.CompanyID && existing.Email == dm.Email {
			dm.ID = existing.ID
			dm.SyncedToCRM = existing.SyncedToCRM
			dm.CRMContactID = existing.CRMContactID
			s.dms[i] = *dm
			return dm.ID, nil
		}
	}
	dm.ID = fmt.Sprintf("dm-%d", len(s.dms)+1)
	s.dms = append(s.dms, *dm)
	return dm.ID, nil
}

func (s *memStore) ListReadyForOutreach(_ context.Context, limit int) ([]model.OutreachContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.OutreachContact
	for _, dm := range s.dms {
		if dm.SyncedToCRM {
			continue
		}
		for _, op := range s.operators {
			if op.ID != dm.CompanyID || !op.IsQualified {
				continue
			}
			out = append(out, model.OutreachContact{
				DecisionMakerID:        dm.ID,
				FullName:               dm.FullName,
				Title:                  dm.Title,
				Email:                  dm.Email,
				CompanyName:            op.CompanyName,
				Category:               op.Category,
				EstimatedLocationCount: op.EstimatedLocationCount,
				POSSystem:              op.POSSystem,
				ExpansionScore:         op.ExpansionScore,
			})
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) MarkSynced(_ context.Context, id, crmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.dms {
		if s.dms[i].ID == id {
			s.dms[i].SyncedToCRM = true
			s.dms[i].CRMContactID = crmID
			return nil
		}
	}
	return fmt.Errorf("decision maker %s not found", id)
}

func (s *memStore) InsertRunHistory(_ context.Context, run *model.RunHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return s.runErr
	}
	run.ID = fmt.Sprintf("run-%d", len(s.runs)+1)
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memStore) ListRunHistory(context.Context, model.RunFilter) ([]model.RunHistory, error) {
	return s.runs, nil
}

func (s *memStore) GetRunHistory(_ context.Context, id string) (*model.RunHistory, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("run %s not found", id)
}

func (s *memStore) SaveLeads(_ context.Context, leads []model.ScoredLead) (int, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	s.leads = append(s.leads, leads...)
	return len(leads), nil
}

func (s *memStore) ExistingLeadNames(context.Context) ([]string, error) {
	return s.leadNames, nil
}

func (s *memStore) ListLeads(context.Context, model.LeadFilter) ([]model.ScoredLead, error) {
	return s.leads, nil
}

func (s *memStore) Ping(context.Context) error    { return nil }
func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

type fakeRegistry struct {
	candidates []model.Candidate
	errs       []error
}

func (f *fakeRegistry) SearchCandidates(context.Context, []string, int) ([]model.Candidate, []error) {
	return f.candidates, f.errs
}

type fakeLocations struct {
	mu     sync.Mutex
	counts map[string]google.BrandLocations
	calls  int
}

func (f *fakeLocations) CountLocationsForBrand(_ context.Context, name, _ string) google.BrandLocations {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.counts[name]
}

// cachingLocations answers from cached before falling back to the counter.
type cachingLocations struct {
	*fakeLocations
	cached map[string]google.BrandLocations
}

func (c *cachingLocations) CachedLocations(_ context.Context, name, _ string) (google.BrandLocations, bool) {
	v, ok := c.cached[name]
	return v, ok
}

type fakeCompanies struct {
	companies map[string]*hunter.Company
	err       error
}

func (f *fakeCompanies) CompanySearch(_ context.Context, name string) (*hunter.Company, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.companies[name], nil
}

type fakeFinder struct {
	byDomain map[string]enrich.Result[[]model.DecisionMaker]
}

func (f *fakeFinder) Find(_ context.Context, domain string, _ []string) enrich.Result[[]model.DecisionMaker] {
	if r, ok := f.byDomain[domain]; ok {
		return r
	}
	return enrich.Result[[]model.DecisionMaker]{Outcome: enrich.OutcomeNoSignal}
}

type fakePOS struct {
	result enrich.Result[enrich.POSMatch]
}

func (f *fakePOS) DetectSite(context.Context, string) enrich.Result[enrich.POSMatch] {
	return f.result
}

type fakeExpansion struct {
	result enrich.Result[enrich.Expansion]
}

func (f *fakeExpansion) DetectOperator(context.Context, string, enrich.ExpansionInputs, time.Time) enrich.Result[enrich.Expansion] {
	return f.result
}

type fakeCRM struct {
	mu       sync.Mutex
	existing map[string]string
	created  []model.OutreachContact
	findErr  error
}

func (f *fakeCRM) FindByEmail(_ context.Context, email string) (string, bool, error) {
	if f.findErr != nil {
		return "", false, f.findErr
	}
	id, ok := f.existing[email]
	return id, ok, nil
}

func (f *fakeCRM) Create(_ context.Context, c model.OutreachContact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, c)
	return fmt.Sprintf("00Q%03d", len(f.created)), nil
}

type fakeLeadSource struct {
	entities    []model.RawEntity
	err         error
	gotKeywords []string
	gotCutoff   time.Time
	gotLayer    string
}

func (f *fakeLeadSource) Established(context.Context, registry.State) ([]model.RawEntity, error) {
	f.gotLayer = "est"
	return f.entities, f.err
}

func (f *fakeLeadSource) NewBusiness(_ context.Context, _ registry.State, keywords []string, cutoff time.Time) ([]model.RawEntity, error) {
	f.gotLayer = "new"
	f.gotKeywords = keywords
	f.gotCutoff = cutoff
	return f.entities, f.err
}

// fakeFetcher returns body or err for every URL.
type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string, string) (string, error) {
	return f.body, f.err
}
