// Package transform maps raw entity rows and routing records into WorkUnits.
// Everything here is pure: callers fetch, this package shapes.
package transform

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/valuation"
)

// Lines converts tray items into valuation lines. When the owning service
// file is known its urgent flag decides line urgency and the item's own
// flag is ignored, including an urgent item inside a non-urgent file.
// With sf nil the item's flag applies.
func Lines(items []repository.TrayItem, prices map[uuid.UUID]decimal.Decimal, sf *repository.ServiceFile) []valuation.Line {
	lines := make([]valuation.Line, 0, len(items))
	for _, it := range items {
		line := valuation.Line{
			Kind:          it.Kind(),
			Quantity:      it.Quantity,
			OverridePrice: it.Price,
			DiscountPct:   it.DiscountPct,
			Urgent:        it.Urgent,
		}
		if it.ServiceID != nil {
			line.CatalogPrice = prices[*it.ServiceID]
		}
		if sf != nil {
			line.Urgent = sf.Urgent
		}
		lines = append(lines, line)
	}
	return lines
}

// TrayBreakdown values one tray's items.
func TrayBreakdown(items []repository.TrayItem, prices map[uuid.UUID]decimal.Decimal, sf *repository.ServiceFile) valuation.Breakdown {
	return valuation.Sum(Lines(items, prices, sf))
}

// ServiceFileBreakdown sums the trays of sf and applies its subscription.
func ServiceFileBreakdown(sf repository.ServiceFile, trays []valuation.Breakdown) valuation.Breakdown {
	return valuation.ServiceFileTotal(trays, valuation.ParseSubscriptionMode(sf.SubscriptionMode))
}

// GroupItemsByTray indexes items by tray, keeping input order within each tray.
func GroupItemsByTray(items []repository.TrayItem) map[uuid.UUID][]repository.TrayItem {
	out := make(map[uuid.UUID][]repository.TrayItem)
	for _, it := range items {
		out[it.TrayID] = append(out[it.TrayID], it)
	}
	return out
}

// ServiceIDs lists the distinct catalog services referenced by items.
func ServiceIDs(items []repository.TrayItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0)
	for _, it := range items {
		if it.ServiceID == nil {
			continue
		}
		if _, ok := seen[*it.ServiceID]; ok {
			continue
		}
		seen[*it.ServiceID] = struct{}{}
		out = append(out, *it.ServiceID)
	}
	return out
}

// FirstTechnician returns the first technician assigned in input order.
func FirstTechnician(items []repository.TrayItem) *uuid.UUID {
	for _, it := range items {
		if it.TechnicianID != nil {
			id := *it.TechnicianID
			return &id
		}
	}
	return nil
}

// AssignedTo reports whether any item is assigned to technicianID.
func AssignedTo(items []repository.TrayItem, technicianID uuid.UUID) bool {
	for _, it := range items {
		if it.TechnicianID != nil && *it.TechnicianID == technicianID {
			return true
		}
	}
	return false
}

// HasAssignment reports whether any item has a technician.
func HasAssignment(items []repository.TrayItem) bool {
	return FirstTechnician(items) != nil
}
