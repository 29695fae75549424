package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/valuation"
	"pipeline_routing_backend/platform/phone"
	"pipeline_routing_backend/platform/sanitize"
)

// instrumentQuota is the most distinct instruments a tray should hold.
const instrumentQuota = 2

type LeadInput struct {
	Record           domain.RoutingRecord
	Lead             repository.Lead
	Tags             []domain.Tag
	Totals           valuation.Breakdown
	ServiceFileCount int
	PhoneRegion      string
}

// LeadUnit builds the work unit of a lead.
func LeadUnit(in LeadInput) domain.WorkUnit {
	meta := map[string]any{
		"serviceFileCount": in.ServiceFileCount,
		"createdAt":        in.Lead.CreatedAt,
		"services":         in.Totals.Services,
		"parts":            in.Totals.Parts,
	}
	if in.Lead.Phone != nil && *in.Lead.Phone != "" {
		meta["phone"] = phone.NormalizeE164(*in.Lead.Phone, in.PhoneRegion)
	}
	if in.Lead.Email != nil && *in.Lead.Email != "" {
		meta["email"] = strings.ToLower(strings.TrimSpace(*in.Lead.Email))
	}
	if in.Lead.Company != nil && *in.Lead.Company != "" {
		meta["company"] = *in.Lead.Company
	}

	tags := make([]domain.Tag, len(in.Tags))
	copy(tags, in.Tags)

	return unitFrom(in.Record, domain.WorkUnit{
		ID:          in.Lead.ID,
		Type:        domain.EntityLead,
		DisplayName: leadName(&in.Lead),
		Tags:        tags,
		Total:       in.Totals.Total(),
		CreatedAt:   in.Lead.CreatedAt,
		Metadata:    meta,
	})
}

type ServiceFileInput struct {
	Record      domain.RoutingRecord
	ServiceFile repository.ServiceFile
	Lead        *repository.Lead
	LeadTags    []domain.Tag
	Totals      valuation.Breakdown
	TrayCount   int
	Technician  *string
}

// ServiceFileUnit builds the work unit of a service file.
func ServiceFileUnit(in ServiceFileInput) domain.WorkUnit {
	sf := in.ServiceFile
	meta := map[string]any{
		"leadId":                sf.LeadID,
		"number":                sf.Number,
		"urgent":                sf.Urgent,
		"officeDirect":          sf.OfficeDirect,
		"courierSent":           sf.CourierSent,
		"subscriptionMode":      string(valuation.ParseSubscriptionMode(sf.SubscriptionMode)),
		"services":              in.Totals.Services,
		"parts":                 in.Totals.Parts,
		"subscriptionDeduction": in.Totals.SubscriptionDeduction,
		"trayCount":             in.TrayCount,
		"source":                string(in.Record.Source),
	}
	if len(in.Record.DerivedFrom) > 0 {
		meta["derivedFrom"] = append([]uuid.UUID(nil), in.Record.DerivedFrom...)
	}

	name := sf.Number
	if in.Lead != nil {
		name = fmt.Sprintf("%s - %s", leadName(in.Lead), sf.Number)
	}

	return unitFrom(in.Record, domain.WorkUnit{
		ID:          sf.ID,
		Type:        domain.EntityServiceFile,
		DisplayName: name,
		Tags:        DisplayTags(in.LeadTags, sf.Urgent),
		Total:       in.Totals.Total(),
		Technician:  in.Technician,
		CreatedAt:   sf.CreatedAt,
		Metadata:    meta,
	})
}

type TrayInput struct {
	Record      domain.RoutingRecord
	Tray        repository.Tray
	ServiceFile *repository.ServiceFile
	Lead        *repository.Lead
	LeadTags    []domain.Tag
	Items       []repository.TrayItem
	Totals      valuation.Breakdown
	Technician  *string
}

// TrayUnit builds the work unit of a tray.
func TrayUnit(in TrayInput) domain.WorkUnit {
	t := in.Tray
	instruments, brands, serials, warranties := countContents(in.Items)
	meta := map[string]any{
		"serviceFileId":           t.ServiceFileID,
		"number":                  t.Number,
		"size":                    t.Size,
		"status":                  string(t.Status),
		"itemCount":               len(in.Items),
		"instrumentCount":         instruments,
		"instrumentQuotaExceeded": instruments > instrumentQuota,
		"brandCount":              brands,
		"serialNumberCount":       serials,
		"warrantyCount":           warranties,
		"source":                  string(in.Record.Source),
	}

	urgent := false
	name := t.Number
	if in.ServiceFile != nil {
		urgent = in.ServiceFile.Urgent
		meta["leadId"] = in.ServiceFile.LeadID
		name = fmt.Sprintf("%s/%s", in.ServiceFile.Number, t.Number)
	}
	if in.Lead != nil {
		meta["leadName"] = leadName(in.Lead)
	}

	return unitFrom(in.Record, domain.WorkUnit{
		ID:          t.ID,
		Type:        domain.EntityTray,
		DisplayName: name,
		Tags:        DisplayTags(in.LeadTags, urgent),
		Total:       in.Totals.Total(),
		Technician:  in.Technician,
		CreatedAt:   t.CreatedAt,
		Metadata:    meta,
	})
}

func unitFrom(rec domain.RoutingRecord, u domain.WorkUnit) domain.WorkUnit {
	u.PipelineID = rec.PipelineID
	u.StageID = rec.StageID
	u.Source = rec.Source
	u.IsReadOnly = rec.IsReadOnly()
	return u
}

func leadName(l *repository.Lead) string {
	if name := sanitize.Text(l.FullName); name != "" {
		return name
	}
	if l.Company != nil {
		return sanitize.Text(*l.Company)
	}
	return ""
}

func countContents(items []repository.TrayItem) (instruments, brands, serials, warranties int) {
	seen := make(map[uuid.UUID]struct{})
	for _, it := range items {
		if it.InstrumentID != nil {
			seen[*it.InstrumentID] = struct{}{}
		}
		for _, b := range it.Brands {
			brands++
			serials += len(b.SerialNumbers)
			if b.Warranty {
				warranties++
			}
		}
	}
	return len(seen), brands, serials, warranties
}

// SortByCreatedDesc orders units newest first, ties by id.
func SortByCreatedDesc(units []domain.WorkUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.After(units[j].CreatedAt)
		}
		return units[i].ID.String() < units[j].ID.String()
	})
}

// SortTrayInputs orders trays by owning service file, newest first, then
// by tray number ascending.
func SortTrayInputs(ins []TrayInput) {
	created := func(in TrayInput) time.Time {
		if in.ServiceFile != nil {
			return in.ServiceFile.CreatedAt
		}
		return in.Tray.CreatedAt
	}
	sort.SliceStable(ins, func(i, j int) bool {
		ci, cj := created(ins[i]), created(ins[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		if c := compareNumbers(ins[i].Tray.Number, ins[j].Tray.Number); c != 0 {
			return c < 0
		}
		return ins[i].Tray.ID.String() < ins[j].Tray.ID.String()
	})
}

// compareNumbers compares numerically when both sides are integers.
func compareNumbers(a, b string) int {
	na, errA := strconv.Atoi(strings.TrimSpace(a))
	nb, errB := strconv.Atoi(strings.TrimSpace(b))
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
