package strategy

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/transform"
	"pipeline_routing_backend/internal/routing/valuation"
)

// leadsWithTags fetches leads and their tags concurrently.
func (d Deps) leadsWithTags(ctx context.Context, op string, leadIDs []uuid.UUID) (map[uuid.UUID]repository.Lead, map[uuid.UUID][]domain.Tag, error) {
	var (
		leads []repository.Lead
		tags  map[uuid.UUID][]domain.Tag
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		leads, err = d.Reader.GetLeadsByIDs(gctx, leadIDs)
		return loadErr(op+".leads", err)
	})
	g.Go(func() error {
		var err error
		tags, err = d.Reader.GetTagsForLeadIDs(gctx, leadIDs)
		return loadErr(op+".tags", err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	byID := make(map[uuid.UUID]repository.Lead, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
	}
	return byID, tags, nil
}

// trayTotals values trays, reading cached breakdowns first and fetching
// catalog prices only for the misses.
func (d Deps) trayTotals(
	ctx context.Context,
	op string,
	trays []repository.Tray,
	itemsByTray map[uuid.UUID][]repository.TrayItem,
	serviceFiles map[uuid.UUID]repository.ServiceFile,
) (map[uuid.UUID]valuation.Breakdown, error) {
	ids := make([]uuid.UUID, 0, len(trays))
	for _, t := range trays {
		ids = append(ids, t.ID)
	}
	totals := d.Totals.Lookup(ctx, domain.EntityTray, ids)

	misses := make([]repository.Tray, 0)
	missItems := make([]repository.TrayItem, 0)
	for _, t := range trays {
		if _, ok := totals[t.ID]; ok {
			continue
		}
		misses = append(misses, t)
		missItems = append(missItems, itemsByTray[t.ID]...)
	}
	if len(misses) == 0 {
		return totals, nil
	}

	prices, err := d.Reader.GetServicePricesByIDs(ctx, transform.ServiceIDs(missItems))
	if err != nil {
		return nil, loadErr(op+".prices", err)
	}

	computed := make(map[uuid.UUID]valuation.Breakdown, len(misses))
	for _, t := range misses {
		var sf *repository.ServiceFile
		if f, ok := serviceFiles[t.ServiceFileID]; ok {
			sf = &f
		}
		computed[t.ID] = transform.TrayBreakdown(itemsByTray[t.ID], prices, sf)
	}
	d.Totals.Store(ctx, domain.EntityTray, computed)

	for id, b := range computed {
		totals[id] = b
	}
	return totals, nil
}

// serviceFileTotals values service files from their trays, cache first.
func (d Deps) serviceFileTotals(
	ctx context.Context,
	op string,
	serviceFiles []repository.ServiceFile,
	traysByFile map[uuid.UUID][]repository.Tray,
	itemsByTray map[uuid.UUID][]repository.TrayItem,
) (map[uuid.UUID]valuation.Breakdown, error) {
	ids := make([]uuid.UUID, 0, len(serviceFiles))
	for _, sf := range serviceFiles {
		ids = append(ids, sf.ID)
	}
	totals := d.Totals.Lookup(ctx, domain.EntityServiceFile, ids)

	missFiles := make(map[uuid.UUID]repository.ServiceFile)
	missTrays := make([]repository.Tray, 0)
	for _, sf := range serviceFiles {
		if _, ok := totals[sf.ID]; ok {
			continue
		}
		missFiles[sf.ID] = sf
		missTrays = append(missTrays, traysByFile[sf.ID]...)
	}
	if len(missFiles) == 0 {
		return totals, nil
	}

	trayTotals, err := d.trayTotals(ctx, op, missTrays, itemsByTray, missFiles)
	if err != nil {
		return nil, err
	}

	computed := make(map[uuid.UUID]valuation.Breakdown, len(missFiles))
	for id, sf := range missFiles {
		trays := traysByFile[id]
		parts := make([]valuation.Breakdown, 0, len(trays))
		for _, t := range trays {
			parts = append(parts, trayTotals[t.ID])
		}
		computed[id] = transform.ServiceFileBreakdown(sf, parts)
	}
	d.Totals.Store(ctx, domain.EntityServiceFile, computed)

	for id, b := range computed {
		totals[id] = b
	}
	return totals, nil
}

// traysWithItems lists the trays of the given service files and their items.
func (d Deps) traysWithItems(ctx context.Context, op string, serviceFileIDs []uuid.UUID) (map[uuid.UUID][]repository.Tray, map[uuid.UUID][]repository.TrayItem, error) {
	trays, err := d.Reader.ListTraysByServiceFileIDs(ctx, serviceFileIDs)
	if err != nil {
		return nil, nil, loadErr(op+".trays", err)
	}
	trayIDs := make([]uuid.UUID, 0, len(trays))
	byFile := make(map[uuid.UUID][]repository.Tray)
	for _, t := range trays {
		trayIDs = append(trayIDs, t.ID)
		byFile[t.ServiceFileID] = append(byFile[t.ServiceFileID], t)
	}

	items, err := d.Reader.GetTrayItemsByTrayIDs(ctx, trayIDs)
	if err != nil {
		return nil, nil, loadErr(op+".items", err)
	}
	return byFile, transform.GroupItemsByTray(items), nil
}
