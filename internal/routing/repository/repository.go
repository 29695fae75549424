package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/domain"
)

// Repository implements Accessors on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Accessors = (*Repository)(nil)

func (r *Repository) ListAllPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, position
		FROM pipelines
		WHERE is_active = true
		ORDER BY position ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Pipeline, 0)
	for rows.Next() {
		var p domain.Pipeline
		if err := rows.Scan(&p.ID, &p.Name, &p.Position); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) ListAllStages(ctx context.Context) ([]domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.pipeline_id, s.name, s.position
		FROM stages s
		JOIN pipelines p ON p.id = s.pipeline_id
		WHERE s.is_active = true AND p.is_active = true
		ORDER BY p.position ASC, s.pipeline_id, s.position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Stage, 0)
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Position); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) ListRoutingRecords(ctx context.Context, pipelineID uuid.UUID, entityType domain.EntityType) ([]domain.RoutingRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, pipeline_id, stage_id, updated_at
		FROM pipeline_items
		WHERE pipeline_id = $1 AND entity_type = $2
		ORDER BY created_at ASC, id ASC
	`, pipelineID, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("list routing records: %w", err)
	}
	return collectRoutingRecords(rows)
}

func (r *Repository) ListRoutingRecordsByStages(ctx context.Context, entityType domain.EntityType, stageIDs []uuid.UUID) ([]domain.RoutingRecord, error) {
	if len(stageIDs) == 0 {
		return []domain.RoutingRecord{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, pipeline_id, stage_id, updated_at
		FROM pipeline_items
		WHERE entity_type = $1 AND stage_id = ANY($2)
		ORDER BY created_at ASC, id ASC
	`, string(entityType), stageIDs)
	if err != nil {
		return nil, fmt.Errorf("list routing records by stages: %w", err)
	}
	return collectRoutingRecords(rows)
}

func (r *Repository) CreateRoutingRecords(ctx context.Context, placements []domain.Placement) ([]domain.RoutingRecord, error) {
	if len(placements) == 0 {
		return []domain.RoutingRecord{}, nil
	}
	types := make([]string, len(placements))
	entityIDs := make([]uuid.UUID, len(placements))
	pipelineIDs := make([]uuid.UUID, len(placements))
	stageIDs := make([]uuid.UUID, len(placements))
	for i, p := range placements {
		types[i] = string(p.EntityType)
		entityIDs[i] = p.EntityID
		pipelineIDs[i] = p.PipelineID
		stageIDs[i] = p.StageID
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO pipeline_items (entity_type, entity_id, pipeline_id, stage_id)
		SELECT * FROM unnest($1::text[], $2::uuid[], $3::uuid[], $4::uuid[])
		RETURNING id, entity_type, entity_id, pipeline_id, stage_id, updated_at
	`, types, entityIDs, pipelineIDs, stageIDs)
	if err != nil {
		return nil, fmt.Errorf("create routing records: %w", err)
	}
	return collectRoutingRecords(rows)
}

func (r *Repository) MoveRoutingRecord(ctx context.Context, entityType domain.EntityType, entityID, pipelineID, stageID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pipeline_items
		SET stage_id = $4, updated_at = NOW()
		WHERE entity_type = $1 AND entity_id = $2 AND pipeline_id = $3
	`, string(entityType), entityID, pipelineID, stageID)
	if err != nil {
		return fmt.Errorf("move routing record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectRoutingRecords(rows pgx.Rows) ([]domain.RoutingRecord, error) {
	defer rows.Close()

	items := make([]domain.RoutingRecord, 0)
	for rows.Next() {
		var (
			id         uuid.UUID
			entityType string
			p          domain.Placement
			updatedAt  time.Time
		)
		if err := rows.Scan(&id, &entityType, &p.EntityID, &p.PipelineID, &p.StageID, &updatedAt); err != nil {
			return nil, err
		}
		p.EntityType = domain.EntityType(entityType)
		items = append(items, domain.Persisted(id, p, updatedAt))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// =====================================
// Entities
// =====================================

const leadColumns = `id, full_name, company, phone, email, created_at`

func scanLeads(rows pgx.Rows) ([]Lead, error) {
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.FullName, &l.Company, &l.Phone, &l.Email, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) GetLeadsByIDs(ctx context.Context, ids []uuid.UUID) ([]Lead, error) {
	if len(ids) == 0 {
		return []Lead{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get leads: %w", err)
	}
	return scanLeads(rows)
}

const serviceFileColumns = `id, lead_id, number, urgent, office_direct, courier_sent, subscription_mode, created_at`

func scanServiceFiles(rows pgx.Rows) ([]ServiceFile, error) {
	defer rows.Close()

	items := make([]ServiceFile, 0)
	for rows.Next() {
		var sf ServiceFile
		if err := rows.Scan(&sf.ID, &sf.LeadID, &sf.Number, &sf.Urgent, &sf.OfficeDirect, &sf.CourierSent, &sf.SubscriptionMode, &sf.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, sf)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) GetServiceFilesByIDs(ctx context.Context, ids []uuid.UUID) ([]ServiceFile, error) {
	if len(ids) == 0 {
		return []ServiceFile{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+serviceFileColumns+` FROM service_files WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get service files: %w", err)
	}
	return scanServiceFiles(rows)
}

func (r *Repository) ListServiceFilesByLeadIDs(ctx context.Context, leadIDs []uuid.UUID) ([]ServiceFile, error) {
	if len(leadIDs) == 0 {
		return []ServiceFile{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceFileColumns+`
		FROM service_files
		WHERE lead_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, leadIDs)
	if err != nil {
		return nil, fmt.Errorf("list service files by lead: %w", err)
	}
	return scanServiceFiles(rows)
}

func (r *Repository) ListServiceFilesWithDeliveryFlags(ctx context.Context) ([]ServiceFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceFileColumns+`
		FROM service_files
		WHERE office_direct = true OR courier_sent = true
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list delivery service files: %w", err)
	}
	return scanServiceFiles(rows)
}

const trayColumns = `id, service_file_id, number, size, status, created_at`

func scanTrays(rows pgx.Rows) ([]Tray, error) {
	defer rows.Close()

	items := make([]Tray, 0)
	for rows.Next() {
		var (
			t      Tray
			status string
		)
		if err := rows.Scan(&t.ID, &t.ServiceFileID, &t.Number, &t.Size, &status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = TrayStatus(status)
		items = append(items, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) GetTraysByIDs(ctx context.Context, ids []uuid.UUID) ([]Tray, error) {
	if len(ids) == 0 {
		return []Tray{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+trayColumns+` FROM trays WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get trays: %w", err)
	}
	return scanTrays(rows)
}

func (r *Repository) ListTraysByServiceFileIDs(ctx context.Context, serviceFileIDs []uuid.UUID) ([]Tray, error) {
	if len(serviceFileIDs) == 0 {
		return []Tray{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+trayColumns+`
		FROM trays
		WHERE service_file_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, serviceFileIDs)
	if err != nil {
		return nil, fmt.Errorf("list trays by service file: %w", err)
	}
	return scanTrays(rows)
}

func (r *Repository) GetTrayItemsByTrayIDs(ctx context.Context, trayIDs []uuid.UUID) ([]TrayItem, error) {
	if len(trayIDs) == 0 {
		return []TrayItem{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tray_id, position, instrument_id, service_id, part_id, name, quantity,
		       price::text, discount_pct::text, urgent, technician_id, pipeline_id
		FROM tray_items
		WHERE tray_id = ANY($1)
		ORDER BY array_position($1::uuid[], tray_id), position ASC, id ASC
	`, trayIDs)
	if err != nil {
		return nil, fmt.Errorf("get tray items: %w", err)
	}
	defer rows.Close()

	items := make([]TrayItem, 0)
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			it       TrayItem
			price    *string
			discount string
		)
		if err := rows.Scan(&it.ID, &it.TrayID, &it.Position, &it.InstrumentID, &it.ServiceID, &it.PartID,
			&it.Name, &it.Quantity, &price, &discount, &it.Urgent, &it.TechnicianID, &it.PipelineID); err != nil {
			return nil, err
		}
		if price != nil {
			p, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("tray item %s price: %w", it.ID, err)
			}
			it.Price = &p
		}
		pct, err := decimal.NewFromString(discount)
		if err != nil {
			return nil, fmt.Errorf("tray item %s discount: %w", it.ID, err)
		}
		it.DiscountPct = pct
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	rows.Close()

	if err := r.attachBrands(ctx, items, index); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) attachBrands(ctx context.Context, items []TrayItem, index map[uuid.UUID]int) error {
	if len(items) == 0 {
		return nil
	}
	itemIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.tray_item_id, b.name, b.warranty,
		       COALESCE(array_agg(sn.serial_number ORDER BY sn.serial_number)
		                FILTER (WHERE sn.serial_number IS NOT NULL), '{}')
		FROM tray_item_brands b
		LEFT JOIN tray_item_serial_numbers sn ON sn.brand_id = b.id
		WHERE b.tray_item_id = ANY($1)
		GROUP BY b.id, b.tray_item_id, b.name, b.warranty
		ORDER BY b.name ASC, b.id ASC
	`, itemIDs)
	if err != nil {
		return fmt.Errorf("get tray item brands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b      Brand
			itemID uuid.UUID
		)
		if err := rows.Scan(&b.ID, &itemID, &b.Name, &b.Warranty, &b.SerialNumbers); err != nil {
			return err
		}
		if i, ok := index[itemID]; ok {
			items[i].Brands = append(items[i].Brands, b)
		}
	}
	return rows.Err()
}

func (r *Repository) ListTrayIDsRoutedToPipeline(ctx context.Context, pipelineID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ti.tray_id
		FROM tray_items ti
		JOIN trays t ON t.id = ti.tray_id
		WHERE ti.pipeline_id = $1
		GROUP BY ti.tray_id, t.created_at
		ORDER BY t.created_at ASC, ti.tray_id ASC
	`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list routed trays: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// =====================================
// Catalog, tags, technicians
// =====================================

func (r *Repository) GetServicePricesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	prices := make(map[uuid.UUID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, price::text FROM services WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get service prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  uuid.UUID
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("service %s price: %w", id, err)
		}
		prices[id] = price
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return prices, nil
}

func (r *Repository) GetTagsForLeadIDs(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID][]domain.Tag, error) {
	tags := make(map[uuid.UUID][]domain.Tag, len(leadIDs))
	if len(leadIDs) == 0 {
		return tags, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT lt.lead_id, t.id, t.name, t.color
		FROM lead_tags lt
		JOIN tags t ON t.id = lt.tag_id
		WHERE lt.lead_id = ANY($1)
		ORDER BY t.name ASC
	`, leadIDs)
	if err != nil {
		return nil, fmt.Errorf("get lead tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			leadID uuid.UUID
			t      domain.Tag
		)
		if err := rows.Scan(&leadID, &t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		tags[leadID] = append(tags[leadID], t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tags, nil
}

func (r *Repository) ListLeadIDsByTagNames(ctx context.Context, names []string) ([]uuid.UUID, error) {
	if len(names) == 0 {
		return []uuid.UUID{}, nil
	}
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(strings.TrimSpace(n))
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT lt.lead_id
		FROM lead_tags lt
		JOIN tags t ON t.id = lt.tag_id
		WHERE lower(trim(t.name)) = ANY($1)
	`, lowered)
	if err != nil {
		return nil, fmt.Errorf("list leads by tag: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

func (r *Repository) GetTechnicianNameByID(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT full_name FROM technicians WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get technician: %w", err)
	}
	return name, nil
}

func (r *Repository) ListTechnicianNames(ctx context.Context) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, full_name FROM technicians`)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	defer rows.Close()

	names := make(map[uuid.UUID]string)
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return names, nil
}
