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

// FrontDesk lists service files on the reception pipeline. Besides stored
// records it shows files flagged for office or courier delivery, files whose
// trays are being worked in a department, and files of department-tagged
// leads. Stored records are moved to the stage the trays imply.
//
// Courier pipelines are served as a reduced variant: stored records plus
// courier-sent files, without department synthesis or moves.
type FrontDesk struct {
	deps Deps
}

func NewFrontDesk(deps Deps) *FrontDesk {
	return &FrontDesk{deps: deps}
}

func (s *FrontDesk) Name() string { return "front_desk" }

func (s *FrontDesk) CanHandle(rc *RoutingContext) bool {
	return rc.Kind == domain.KindFrontDesk || rc.Kind == domain.KindCourier
}

// deskSources is everything read before service files are resolved.
type deskSources struct {
	records     []domain.RoutingRecord
	delivery    []repository.ServiceFile
	deptRecords []domain.RoutingRecord
	taggedLeads []uuid.UUID
}

func (s *FrontDesk) Load(ctx context.Context, rc *RoutingContext) (Plan, error) {
	const op = "strategy.front_desk"
	courier := rc.Kind == domain.KindCourier
	phases := departmentPhases(rc)

	src, err := s.fetchSources(ctx, op, rc, courier, phases)
	if err != nil {
		return Plan{}, err
	}

	// Owning service file of every tray sitting on a department stage.
	trayFile := make(map[uuid.UUID]uuid.UUID)
	var taggedFiles []repository.ServiceFile
	g, gctx := errgroup.WithContext(ctx)
	if len(src.deptRecords) > 0 {
		g.Go(func() error {
			ids := appendUnique(nil, make(map[uuid.UUID]struct{}), entityIDs(src.deptRecords)...)
			trays, err := s.deps.Reader.GetTraysByIDs(gctx, ids)
			if err != nil {
				return loadErr(op+".department_trays", err)
			}
			for _, t := range trays {
				trayFile[t.ID] = t.ServiceFileID
			}
			return nil
		})
	}
	if len(src.taggedLeads) > 0 {
		g.Go(func() error {
			var err error
			taggedFiles, err = s.deps.Reader.ListServiceFilesByLeadIDs(gctx, src.taggedLeads)
			return loadErr(op+".tagged_service_files", err)
		})
	}
	if err := g.Wait(); err != nil {
		return Plan{}, err
	}

	// Inclusion order: stored, delivery, department, tagged.
	seen := make(map[uuid.UUID]struct{})
	fileIDs := appendUnique(nil, seen, entityIDs(src.records)...)
	for _, sf := range src.delivery {
		fileIDs = appendUnique(fileIDs, seen, sf.ID)
	}
	for _, r := range src.deptRecords {
		if sfID, ok := trayFile[r.EntityID]; ok {
			fileIDs = appendUnique(fileIDs, seen, sfID)
		}
	}
	for _, sf := range taggedFiles {
		fileIDs = appendUnique(fileIDs, seen, sf.ID)
	}
	if len(fileIDs) == 0 {
		return Plan{Units: []domain.WorkUnit{}}, nil
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

	var (
		traysByFile map[uuid.UUID][]repository.Tray
		itemsByTray map[uuid.UUID][]repository.TrayItem
		leads       map[uuid.UUID]repository.Lead
		tags        map[uuid.UUID][]domain.Tag
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		traysByFile, itemsByTray, err = s.deps.traysWithItems(gctx, op, fileIDs)
		return err
	})
	g.Go(func() error {
		var err error
		leads, tags, err = s.deps.leadsWithTags(gctx, op, leadIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return Plan{}, err
	}

	states, derived := trayStates(src.deptRecords, trayFile, phases, itemsByTray)

	recordByFile := make(map[uuid.UUID]domain.RoutingRecord, len(src.records))
	for _, r := range src.records {
		recordByFile[r.EntityID] = r
	}
	deskStages := rc.PipelineStages()

	included := make([]repository.ServiceFile, 0, len(fileIDs))
	placed := make(map[uuid.UUID]domain.RoutingRecord, len(fileIDs))
	writes := make([]PendingWrite, 0)
	for _, id := range fileIDs {
		sf, ok := filesByID[id]
		if !ok {
			continue
		}
		if courier && !sf.CourierSent {
			if _, stored := recordByFile[id]; !stored {
				continue
			}
		}

		target, hasTarget := s.target(rc, sf, states[id], deskStages)
		rec, stored := recordByFile[id]
		switch {
		case stored:
			if !courier && hasTarget && rec.StageID != target.ID {
				writes = append(writes, PendingWrite{
					Kind:        WriteMove,
					Placement:   domain.Placement{EntityType: domain.EntityServiceFile, EntityID: id, PipelineID: rc.Pipeline.ID, StageID: target.ID},
					FromStageID: rec.StageID,
				})
				rec.StageID = target.ID
			}

		case sf.OfficeDirect || sf.CourierSent:
			stage := target
			if courier || !hasTarget {
				if stage, ok = placementStage(deskStages, deliveryPattern(sf)); !ok {
					continue
				}
			}
			p := domain.Placement{EntityType: domain.EntityServiceFile, EntityID: id, PipelineID: rc.Pipeline.ID, StageID: stage.ID}
			rec = domain.RoutingRecord{Placement: p, Source: rc.repairSource(), DerivedFrom: derived[id]}
			writes = append(writes, PendingWrite{Kind: WriteCreate, Placement: p})

		case courier:
			continue

		default:
			stage := target
			if !hasTarget {
				if stage, ok = domain.FirstStage(deskStages); !ok {
					continue
				}
			}
			p := domain.Placement{EntityType: domain.EntityServiceFile, EntityID: id, PipelineID: rc.Pipeline.ID, StageID: stage.ID}
			rec = domain.Virtual(p, derived[id])
		}

		included = append(included, sf)
		placed[id] = rec
	}

	totals, err := s.deps.serviceFileTotals(ctx, op, included, traysByFile, itemsByTray)
	if err != nil {
		return Plan{}, err
	}

	units := make([]domain.WorkUnit, 0, len(included))
	for _, sf := range included {
		fileItems := make([]repository.TrayItem, 0)
		for _, t := range traysByFile[sf.ID] {
			fileItems = append(fileItems, itemsByTray[t.ID]...)
		}
		in := transform.ServiceFileInput{
			Record:      placed[sf.ID],
			ServiceFile: sf,
			LeadTags:    tags[sf.LeadID],
			Totals:      totals[sf.ID],
			TrayCount:   len(traysByFile[sf.ID]),
			Technician:  s.deps.technicianName(ctx, transform.FirstTechnician(fileItems)),
		}
		if lead, ok := leads[sf.LeadID]; ok {
			in.Lead = &lead
		}
		units = append(units, transform.ServiceFileUnit(in))
	}
	transform.SortByCreatedDesc(units)
	return Plan{Units: units, Writes: writes}, nil
}

func (s *FrontDesk) fetchSources(ctx context.Context, op string, rc *RoutingContext, courier bool, phases map[uuid.UUID]domain.TrayPhase) (deskSources, error) {
	var src deskSources
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.deps.warmTechnicians(gctx)
		return nil
	})
	g.Go(func() error {
		records, err := s.deps.Reader.ListRoutingRecords(gctx, rc.Pipeline.ID, domain.EntityServiceFile)
		src.records = collapse(records)
		return loadErr(op+".records", err)
	})
	g.Go(func() error {
		var err error
		src.delivery, err = s.deps.Reader.ListServiceFilesWithDeliveryFlags(gctx)
		return loadErr(op+".delivery_service_files", err)
	})
	if !courier {
		if len(phases) > 0 {
			stageIDs := make([]uuid.UUID, 0, len(phases))
			for id := range phases {
				stageIDs = append(stageIDs, id)
			}
			g.Go(func() error {
				records, err := s.deps.Reader.ListRoutingRecordsByStages(gctx, domain.EntityTray, stageIDs)
				src.deptRecords = collapse(records)
				return loadErr(op+".department_records", err)
			})
		}
		g.Go(func() error {
			var err error
			src.taggedLeads, err = s.deps.Reader.ListLeadIDsByTagNames(gctx, domain.DepartmentPipelineNames())
			return loadErr(op+".tagged_leads", err)
		})
	}
	if err := g.Wait(); err != nil {
		return deskSources{}, err
	}
	return src, nil
}

// target resolves the desk stage implied by a file's department trays.
// ok is false without trays or when the desk has no matching stage.
func (s *FrontDesk) target(rc *RoutingContext, sf repository.ServiceFile, states []domain.TrayState, deskStages []domain.Stage) (domain.Stage, bool) {
	key, ok := domain.FrontDeskTarget(states)
	if !ok {
		return domain.Stage{}, false
	}
	stage, ok := domain.FindStageByPattern(deskStages, key)
	if !ok {
		s.deps.Log.Info("front desk has no stage for pattern",
			slog.String("pipeline", rc.Pipeline.Name),
			slog.String("pattern", string(key)),
			slog.String("service_file_id", sf.ID.String()))
		return domain.Stage{}, false
	}
	return stage, true
}

// departmentPhases maps every classifiable department stage to its tray phase.
func departmentPhases(rc *RoutingContext) map[uuid.UUID]domain.TrayPhase {
	departments := make(map[uuid.UUID]struct{})
	for _, p := range rc.Pipelines {
		if domain.ClassifyPipeline(p.Name) == domain.KindDepartment {
			departments[p.ID] = struct{}{}
		}
	}
	phases := make(map[uuid.UUID]domain.TrayPhase)
	for _, st := range rc.Stages {
		if _, ok := departments[st.PipelineID]; !ok {
			continue
		}
		if phase, ok := domain.ClassifyDepartmentStage(st.Name); ok {
			phases[st.ID] = phase
		}
	}
	return phases
}

// trayStates groups department tray placements by owning service file.
func trayStates(
	deptRecords []domain.RoutingRecord,
	trayFile map[uuid.UUID]uuid.UUID,
	phases map[uuid.UUID]domain.TrayPhase,
	itemsByTray map[uuid.UUID][]repository.TrayItem,
) (map[uuid.UUID][]domain.TrayState, map[uuid.UUID][]uuid.UUID) {
	states := make(map[uuid.UUID][]domain.TrayState)
	derived := make(map[uuid.UUID][]uuid.UUID)
	seen := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, r := range deptRecords {
		sfID, ok := trayFile[r.EntityID]
		if !ok {
			continue
		}
		phase, ok := phases[r.StageID]
		if !ok {
			continue
		}
		states[sfID] = append(states[sfID], domain.TrayState{
			TrayID:   r.EntityID,
			Phase:    phase,
			Assigned: transform.HasAssignment(itemsByTray[r.EntityID]),
		})
		if seen[sfID] == nil {
			seen[sfID] = make(map[uuid.UUID]struct{})
		}
		derived[sfID] = appendUnique(derived[sfID], seen[sfID], r.EntityID)
	}
	return states, derived
}

func deliveryPattern(sf repository.ServiceFile) domain.PatternKey {
	if sf.CourierSent {
		return domain.PatternCourierSent
	}
	return domain.PatternOfficeDirect
}
