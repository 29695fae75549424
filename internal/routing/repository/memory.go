package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/domain"
)

// MemoryStore keeps every accessor in process memory. It backs tests and
// local runs without Postgres. Writes are counted so callers can assert
// that a repeated route issues none.
type MemoryStore struct {
	mu sync.RWMutex

	pipelines    []domain.Pipeline
	stages       []domain.Stage
	records      []domain.RoutingRecord
	leads        []Lead
	serviceFiles []ServiceFile
	trays        []Tray
	items        []TrayItem
	prices       map[uuid.UUID]decimal.Decimal
	tags         map[uuid.UUID][]domain.Tag
	technicians  map[uuid.UUID]string

	faults map[string]error
	calls  map[string]int
	now    func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:      make(map[uuid.UUID]decimal.Decimal),
		tags:        make(map[uuid.UUID][]domain.Tag),
		technicians: make(map[uuid.UUID]string),
		faults:      make(map[string]error),
		calls:       make(map[string]int),
		now:         time.Now,
	}
}

// FailOn makes the accessor method named op return err until cleared with a nil err.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Calls returns how many times the accessor method named op ran.
func (s *MemoryStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Writes returns the number of create and move calls issued so far.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls["CreateRoutingRecords"] + s.calls["MoveRoutingRecord"]
}

// enter records a call and returns the injected fault, if any. Callers hold mu.
func (s *MemoryStore) enter(op string) error {
	s.calls[op]++
	return s.faults[op]
}

// =====================================
// Seeding
// =====================================

// AddPipeline stores a pipeline and its stages. Stage PipelineIDs are overwritten.
func (s *MemoryStore) AddPipeline(p domain.Pipeline, stages ...domain.Stage) domain.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.pipelines = append(s.pipelines, p)
	for i, st := range stages {
		if st.ID == uuid.Nil {
			st.ID = uuid.New()
		}
		st.PipelineID = p.ID
		if st.Position == 0 {
			st.Position = i + 1
		}
		s.stages = append(s.stages, st)
	}
	return p
}

// PutRoutingRecord stores a placement as-is, duplicates included.
func (s *MemoryStore) PutRoutingRecord(p domain.Placement) domain.RoutingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := domain.Persisted(uuid.New(), p, s.now())
	s.records = append(s.records, rec)
	return rec
}

func (s *MemoryStore) AddLead(l Lead, tags ...domain.Tag) Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.leads = append(s.leads, l)
	for _, t := range tags {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		s.tags[l.ID] = append(s.tags[l.ID], t)
	}
	return l
}

func (s *MemoryStore) AddServiceFile(sf ServiceFile) ServiceFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf.ID == uuid.Nil {
		sf.ID = uuid.New()
	}
	if sf.CreatedAt.IsZero() {
		sf.CreatedAt = s.now()
	}
	s.serviceFiles = append(s.serviceFiles, sf)
	return sf
}

// UpdateServiceFile replaces the stored file with the same id.
func (s *MemoryStore) UpdateServiceFile(sf ServiceFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.serviceFiles {
		if s.serviceFiles[i].ID == sf.ID {
			s.serviceFiles[i] = sf
			return
		}
	}
}

func (s *MemoryStore) AddTray(t Tray) Tray {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TrayReceived
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.trays = append(s.trays, t)
	return t
}

func (s *MemoryStore) AddTrayItem(it TrayItem) TrayItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	s.items = append(s.items, it)
	return it
}

func (s *MemoryStore) SetServicePrice(serviceID uuid.UUID, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[serviceID] = price
}

func (s *MemoryStore) AddTechnician(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.technicians[id] = name
}

// =====================================
// PipelineReader
// =====================================

func (s *MemoryStore) ListAllPipelines(_ context.Context) ([]domain.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListAllPipelines"); err != nil {
		return nil, err
	}
	out := make([]domain.Pipeline, len(s.pipelines))
	copy(out, s.pipelines)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) ListAllStages(_ context.Context) ([]domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListAllStages"); err != nil {
		return nil, err
	}
	out := make([]domain.Stage, 0, len(s.stages))
	for _, p := range s.pipelines {
		own := domain.StagesOf(s.stages, p.ID)
		sort.SliceStable(own, func(i, j int) bool { return own[i].Position < own[j].Position })
		out = append(out, own...)
	}
	return out, nil
}

// =====================================
// RoutingReader / RoutingWriter
// =====================================

func (s *MemoryStore) ListRoutingRecords(_ context.Context, pipelineID uuid.UUID, entityType domain.EntityType) ([]domain.RoutingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListRoutingRecords"); err != nil {
		return nil, err
	}
	out := make([]domain.RoutingRecord, 0)
	for _, r := range s.records {
		if r.PipelineID == pipelineID && r.EntityType == entityType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRoutingRecordsByStages(_ context.Context, entityType domain.EntityType, stageIDs []uuid.UUID) ([]domain.RoutingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListRoutingRecordsByStages"); err != nil {
		return nil, err
	}
	wanted := idSet(stageIDs)
	out := make([]domain.RoutingRecord, 0)
	for _, r := range s.records {
		if _, ok := wanted[r.StageID]; ok && r.EntityType == entityType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateRoutingRecords(_ context.Context, placements []domain.Placement) ([]domain.RoutingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateRoutingRecords"); err != nil {
		return nil, err
	}
	out := make([]domain.RoutingRecord, 0, len(placements))
	for _, p := range placements {
		rec := domain.Persisted(uuid.New(), p, s.now())
		s.records = append(s.records, rec)
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) MoveRoutingRecord(_ context.Context, entityType domain.EntityType, entityID, pipelineID, stageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MoveRoutingRecord"); err != nil {
		return err
	}
	moved := false
	for i := range s.records {
		r := &s.records[i]
		if r.EntityType == entityType && r.EntityID == entityID && r.PipelineID == pipelineID {
			r.StageID = stageID
			r.UpdatedAt = s.now()
			moved = true
		}
	}
	if !moved {
		return ErrNotFound
	}
	return nil
}

// =====================================
// EntityReader
// =====================================

func (s *MemoryStore) GetLeadsByIDs(_ context.Context, ids []uuid.UUID) ([]Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetLeadsByIDs"); err != nil {
		return nil, err
	}
	wanted := idSet(ids)
	out := make([]Lead, 0, len(ids))
	for _, l := range s.leads {
		if _, ok := wanted[l.ID]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetServiceFilesByIDs(_ context.Context, ids []uuid.UUID) ([]ServiceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetServiceFilesByIDs"); err != nil {
		return nil, err
	}
	wanted := idSet(ids)
	out := make([]ServiceFile, 0, len(ids))
	for _, sf := range s.serviceFiles {
		if _, ok := wanted[sf.ID]; ok {
			out = append(out, sf)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListServiceFilesByLeadIDs(_ context.Context, leadIDs []uuid.UUID) ([]ServiceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListServiceFilesByLeadIDs"); err != nil {
		return nil, err
	}
	wanted := idSet(leadIDs)
	out := make([]ServiceFile, 0)
	for _, sf := range s.serviceFiles {
		if _, ok := wanted[sf.LeadID]; ok {
			out = append(out, sf)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListServiceFilesWithDeliveryFlags(_ context.Context) ([]ServiceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListServiceFilesWithDeliveryFlags"); err != nil {
		return nil, err
	}
	out := make([]ServiceFile, 0)
	for _, sf := range s.serviceFiles {
		if sf.OfficeDirect || sf.CourierSent {
			out = append(out, sf)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTraysByIDs(_ context.Context, ids []uuid.UUID) ([]Tray, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTraysByIDs"); err != nil {
		return nil, err
	}
	wanted := idSet(ids)
	out := make([]Tray, 0, len(ids))
	for _, t := range s.trays {
		if _, ok := wanted[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTraysByServiceFileIDs(_ context.Context, serviceFileIDs []uuid.UUID) ([]Tray, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTraysByServiceFileIDs"); err != nil {
		return nil, err
	}
	wanted := idSet(serviceFileIDs)
	out := make([]Tray, 0)
	for _, t := range s.trays {
		if _, ok := wanted[t.ServiceFileID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTrayItemsByTrayIDs(_ context.Context, trayIDs []uuid.UUID) ([]TrayItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTrayItemsByTrayIDs"); err != nil {
		return nil, err
	}
	out := make([]TrayItem, 0)
	seen := make(map[uuid.UUID]struct{}, len(trayIDs))
	for _, trayID := range trayIDs {
		if _, dup := seen[trayID]; dup {
			continue
		}
		seen[trayID] = struct{}{}
		own := make([]TrayItem, 0)
		for _, it := range s.items {
			if it.TrayID == trayID {
				own = append(own, it)
			}
		}
		sort.SliceStable(own, func(i, j int) bool { return own[i].Position < own[j].Position })
		out = append(out, own...)
	}
	return out, nil
}

func (s *MemoryStore) ListTrayIDsRoutedToPipeline(_ context.Context, pipelineID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTrayIDsRoutedToPipeline"); err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]struct{})
	for _, it := range s.items {
		if it.PipelineID == nil || *it.PipelineID != pipelineID {
			continue
		}
		if _, dup := seen[it.TrayID]; dup {
			continue
		}
		seen[it.TrayID] = struct{}{}
		out = append(out, it.TrayID)
	}
	return out, nil
}

// =====================================
// CatalogReader / TagReader / TechnicianReader
// =====================================

func (s *MemoryStore) GetServicePricesByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetServicePricesByIDs"); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTagsForLeadIDs(_ context.Context, leadIDs []uuid.UUID) (map[uuid.UUID][]domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTagsForLeadIDs"); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]domain.Tag, len(leadIDs))
	for _, id := range leadIDs {
		if tags, ok := s.tags[id]; ok {
			out[id] = append([]domain.Tag(nil), tags...)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListLeadIDsByTagNames(_ context.Context, names []string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListLeadIDsByTagNames"); err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[domain.Fold(n)] = struct{}{}
	}
	out := make([]uuid.UUID, 0)
	for _, l := range s.leads {
		for _, t := range s.tags[l.ID] {
			if _, ok := wanted[domain.Fold(t.Name)]; ok {
				out = append(out, l.ID)
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTechnicianNameByID(_ context.Context, id uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTechnicianNameByID"); err != nil {
		return "", err
	}
	name, ok := s.technicians[id]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

func (s *MemoryStore) ListTechnicianNames(_ context.Context) (map[uuid.UUID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTechnicianNames"); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(s.technicians))
	for id, name := range s.technicians {
		out[id] = name
	}
	return out, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

var _ Accessors = (*MemoryStore)(nil)
