package strategy

import (
	"context"

	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/transform"
	"pipeline_routing_backend/internal/routing/valuation"
)

// Standard lists the leads of a pipeline with no specialized behaviour.
type Standard struct {
	deps Deps
}

func NewStandard(deps Deps) *Standard {
	return &Standard{deps: deps}
}

func (s *Standard) Name() string { return "standard" }

// CanHandle accepts every pipeline; Standard is the fallback.
func (s *Standard) CanHandle(_ *RoutingContext) bool { return true }

func (s *Standard) Load(ctx context.Context, rc *RoutingContext) (Plan, error) {
	const op = "strategy.standard"

	records, err := s.deps.Reader.ListRoutingRecords(ctx, rc.Pipeline.ID, domain.EntityLead)
	if err != nil {
		return Plan{}, loadErr(op+".records", err)
	}
	records = collapse(records)
	if len(records) == 0 {
		return Plan{Units: []domain.WorkUnit{}}, nil
	}
	leadIDs := entityIDs(records)

	leads, tags, err := s.deps.leadsWithTags(ctx, op, leadIDs)
	if err != nil {
		return Plan{}, err
	}
	serviceFiles, err := s.deps.Reader.ListServiceFilesByLeadIDs(ctx, leadIDs)
	if err != nil {
		return Plan{}, loadErr(op+".service_files", err)
	}
	filesByLead := make(map[uuid.UUID][]repository.ServiceFile)
	for _, sf := range serviceFiles {
		filesByLead[sf.LeadID] = append(filesByLead[sf.LeadID], sf)
	}

	totals, err := s.leadTotals(ctx, op, leadIDs, filesByLead)
	if err != nil {
		return Plan{}, err
	}

	units := make([]domain.WorkUnit, 0, len(records))
	for _, rec := range records {
		lead, ok := leads[rec.EntityID]
		if !ok {
			continue
		}
		units = append(units, transform.LeadUnit(transform.LeadInput{
			Record:           rec,
			Lead:             lead,
			Tags:             tags[lead.ID],
			Totals:           totals[lead.ID],
			ServiceFileCount: len(filesByLead[lead.ID]),
			PhoneRegion:      s.deps.PhoneRegion,
		}))
	}
	transform.SortByCreatedDesc(units)
	return Plan{Units: units}, nil
}

// leadTotals sums already subscription-adjusted service file totals per lead.
// Trays and items are only fetched for leads missing from the cache.
func (s *Standard) leadTotals(ctx context.Context, op string, leadIDs []uuid.UUID, filesByLead map[uuid.UUID][]repository.ServiceFile) (map[uuid.UUID]valuation.Breakdown, error) {
	totals := s.deps.Totals.Lookup(ctx, domain.EntityLead, leadIDs)

	missLeads := make([]uuid.UUID, 0)
	missFiles := make([]repository.ServiceFile, 0)
	missFileIDs := make([]uuid.UUID, 0)
	for _, id := range leadIDs {
		if _, ok := totals[id]; ok {
			continue
		}
		missLeads = append(missLeads, id)
		for _, sf := range filesByLead[id] {
			missFiles = append(missFiles, sf)
			missFileIDs = append(missFileIDs, sf.ID)
		}
	}
	if len(missLeads) == 0 {
		return totals, nil
	}

	var fileTotals map[uuid.UUID]valuation.Breakdown
	if len(missFiles) > 0 {
		traysByFile, itemsByTray, err := s.deps.traysWithItems(ctx, op, missFileIDs)
		if err != nil {
			return nil, err
		}
		fileTotals, err = s.deps.serviceFileTotals(ctx, op, missFiles, traysByFile, itemsByTray)
		if err != nil {
			return nil, err
		}
	}

	computed := make(map[uuid.UUID]valuation.Breakdown, len(missLeads))
	for _, id := range missLeads {
		parts := make([]valuation.Breakdown, 0, len(filesByLead[id]))
		for _, sf := range filesByLead[id] {
			parts = append(parts, fileTotals[sf.ID])
		}
		computed[id] = valuation.LeadTotal(parts)
	}
	s.deps.Totals.Store(ctx, domain.EntityLead, computed)

	for id, b := range computed {
		totals[id] = b
	}
	return totals, nil
}
