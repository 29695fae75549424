package strategy

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/transform"
)

// Department lists the trays of a work department. Trays whose items are
// routed to the department but lack a record there are repaired onto the
// pipeline's "new" stage.
type Department struct {
	deps Deps
}

func NewDepartment(deps Deps) *Department {
	return &Department{deps: deps}
}

func (s *Department) Name() string { return "department" }

func (s *Department) CanHandle(rc *RoutingContext) bool {
	return rc.Kind == domain.KindDepartment
}

func (s *Department) Load(ctx context.Context, rc *RoutingContext) (Plan, error) {
	const op = "strategy.department"

	var (
		records []domain.RoutingRecord
		routed  []uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.deps.warmTechnicians(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = s.deps.Reader.ListRoutingRecords(gctx, rc.Pipeline.ID, domain.EntityTray)
		return loadErr(op+".records", err)
	})
	g.Go(func() error {
		var err error
		routed, err = s.deps.Reader.ListTrayIDsRoutedToPipeline(gctx, rc.Pipeline.ID)
		return loadErr(op+".routed_trays", err)
	})
	if err := g.Wait(); err != nil {
		return Plan{}, err
	}

	records = collapse(records)
	records, writes := s.repair(rc, records, routed)
	if len(records) == 0 {
		return Plan{Units: []domain.WorkUnit{}, Writes: writes}, nil
	}

	trayIDs := entityIDs(records)
	var (
		trays []repository.Tray
		items []repository.TrayItem
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trays, err = s.deps.Reader.GetTraysByIDs(gctx, trayIDs)
		return loadErr(op+".trays", err)
	})
	g.Go(func() error {
		var err error
		items, err = s.deps.Reader.GetTrayItemsByTrayIDs(gctx, trayIDs)
		return loadErr(op+".items", err)
	})
	if err := g.Wait(); err != nil {
		return Plan{}, err
	}
	itemsByTray := transform.GroupItemsByTray(items)

	trays = visibleTrays(rc.Actor, trays, itemsByTray)
	if len(trays) == 0 {
		return Plan{Units: []domain.WorkUnit{}, Writes: writes}, nil
	}

	fileIDs := make([]uuid.UUID, 0, len(trays))
	seen := make(map[uuid.UUID]struct{})
	for _, t := range trays {
		fileIDs = appendUnique(fileIDs, seen, t.ServiceFileID)
	}
	files, err := s.deps.Reader.GetServiceFilesByIDs(ctx, fileIDs)
	if err != nil {
		return Plan{}, loadErr(op+".service_files", err)
	}
	filesByID := make(map[uuid.UUID]repository.ServiceFile, len(files))
	leadIDs := make([]uuid.UUID, 0, len(files))
	seenLeads := make(map[uuid.UUID]struct{})
	for _, sf := range files {
		filesByID[sf.ID] = sf
		leadIDs = appendUnique(leadIDs, seenLeads, sf.LeadID)
	}

	leads, tags, err := s.deps.leadsWithTags(ctx, op, leadIDs)
	if err != nil {
		return Plan{}, err
	}
	trayTotals, err := s.deps.trayTotals(ctx, op, trays, itemsByTray, filesByID)
	if err != nil {
		return Plan{}, err
	}

	recordByTray := make(map[uuid.UUID]domain.RoutingRecord, len(records))
	for _, r := range records {
		recordByTray[r.EntityID] = r
	}

	inputs := make([]transform.TrayInput, 0, len(trays))
	for _, t := range trays {
		in := transform.TrayInput{
			Record:     recordByTray[t.ID],
			Tray:       t,
			Items:      itemsByTray[t.ID],
			Totals:     trayTotals[t.ID],
			Technician: s.deps.technicianName(ctx, transform.FirstTechnician(itemsByTray[t.ID])),
		}
		if sf, ok := filesByID[t.ServiceFileID]; ok {
			in.ServiceFile = &sf
			in.LeadTags = tags[sf.LeadID]
			if lead, ok := leads[sf.LeadID]; ok {
				in.Lead = &lead
			}
		}
		inputs = append(inputs, in)
	}
	transform.SortTrayInputs(inputs)

	units := make([]domain.WorkUnit, 0, len(inputs))
	for _, in := range inputs {
		units = append(units, transform.TrayUnit(in))
	}
	return Plan{Units: units, Writes: writes}, nil
}

// repair adds a record on the "new" stage for every routed tray missing one.
func (s *Department) repair(rc *RoutingContext, records []domain.RoutingRecord, routed []uuid.UUID) ([]domain.RoutingRecord, []PendingWrite) {
	present := make(map[uuid.UUID]struct{}, len(records))
	for _, r := range records {
		present[r.EntityID] = struct{}{}
	}

	missing := make([]uuid.UUID, 0)
	for _, id := range routed {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
			present[id] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return records, nil
	}

	stage, ok := placementStage(rc.PipelineStages(), domain.PatternNew)
	if !ok {
		s.deps.Log.Info("department has no stages, skipping tray repair",
			slog.String("pipeline", rc.Pipeline.Name), slog.Int("trays", len(missing)))
		return records, nil
	}

	writes := make([]PendingWrite, 0, len(missing))
	for _, id := range missing {
		p := domain.Placement{
			EntityType: domain.EntityTray,
			EntityID:   id,
			PipelineID: rc.Pipeline.ID,
			StageID:    stage.ID,
		}
		records = append(records, domain.RoutingRecord{Placement: p, Source: rc.repairSource()})
		writes = append(writes, PendingWrite{Kind: WriteCreate, Placement: p})
	}
	return records, writes
}

// visibleTrays keeps every tray for privileged actors and otherwise only
// trays with an item assigned to the actor.
func visibleTrays(actor domain.Actor, trays []repository.Tray, itemsByTray map[uuid.UUID][]repository.TrayItem) []repository.Tray {
	if actor.IsPrivileged() {
		return trays
	}
	out := make([]repository.Tray, 0)
	for _, t := range trays {
		if transform.AssignedTo(itemsByTray[t.ID], actor.ID) {
			out = append(out, t)
		}
	}
	return out
}
