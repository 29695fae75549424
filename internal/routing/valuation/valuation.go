// Package valuation computes monetary totals for tray lines and their
// aggregates: per-line discount, urgency surcharge and subscription discount.
package valuation

import (
	"github.com/shopspring/decimal"
)

// LineKind says what a tray line carries.
type LineKind string

const (
	// LineInstrument is a pure instrument reference and has no price.
	LineInstrument LineKind = "instrument"
	LineService    LineKind = "service"
	LinePart       LineKind = "part"
)

var (
	hundred          = decimal.NewFromInt(100)
	urgencySurcharge = decimal.RequireFromString("1.30")
	servicesRate     = decimal.RequireFromString("0.10")
	partsRate        = decimal.RequireFromString("0.05")
)

// Line is one priced tray entry.
type Line struct {
	Kind          LineKind
	Quantity      int
	CatalogPrice  decimal.Decimal
	OverridePrice *decimal.Decimal
	DiscountPct   decimal.Decimal
	// Urgent is the effective urgency. Callers that know the owning service
	// file set it from the file's flag, which overrides the item's own flag
	// in both directions.
	Urgent        bool
}

// EffectivePrice is the override price when set, else the catalog price.
func (l Line) EffectivePrice() decimal.Decimal {
	if l.OverridePrice != nil {
		return *l.OverridePrice
	}
	return l.CatalogPrice
}

// ClampDiscount bounds a discount percentage to [0, 100].
func ClampDiscount(pct decimal.Decimal) decimal.Decimal {
	if pct.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// LineTotal is quantity * price, less the clamped discount, plus 30% when urgent.
// Instrument lines are worth nothing. Urgency is taken from l.Urgent as given:
// a line flagged urgent inside a non-urgent service file arrives here with
// Urgent false, so 1 x 100 at 10% off is valued at 90, not 117.
func LineTotal(l Line) decimal.Decimal {
	if l.Kind == LineInstrument {
		return decimal.Zero
	}
	qty := l.Quantity
	if qty < 1 {
		qty = 1
	}

	base := decimal.NewFromInt(int64(qty)).Mul(l.EffectivePrice())
	keep := decimal.NewFromInt(1).Sub(ClampDiscount(l.DiscountPct).Div(hundred))
	total := base.Mul(keep)
	if l.Urgent {
		total = total.Mul(urgencySurcharge)
	}
	return total
}

// Breakdown splits an aggregate into service and part subtotals.
type Breakdown struct {
	Services              decimal.Decimal `json:"services"`
	Parts                 decimal.Decimal `json:"parts"`
	SubscriptionDeduction decimal.Decimal `json:"subscriptionDeduction"`
}

// Subtotal is services plus parts before the subscription deduction.
func (b Breakdown) Subtotal() decimal.Decimal {
	return b.Services.Add(b.Parts)
}

// Total is the subtotal less the subscription deduction.
func (b Breakdown) Total() decimal.Decimal {
	return b.Subtotal().Sub(b.SubscriptionDeduction)
}

// Add sums two breakdowns field by field.
func (b Breakdown) Add(other Breakdown) Breakdown {
	return Breakdown{
		Services:              b.Services.Add(other.Services),
		Parts:                 b.Parts.Add(other.Parts),
		SubscriptionDeduction: b.SubscriptionDeduction.Add(other.SubscriptionDeduction),
	}
}

// Sum totals a set of lines. Instrument lines are skipped.
func Sum(lines []Line) Breakdown {
	var b Breakdown
	for _, l := range lines {
		switch l.Kind {
		case LineService:
			b.Services = b.Services.Add(LineTotal(l))
		case LinePart:
			b.Parts = b.Parts.Add(LineTotal(l))
		}
	}
	return b
}

// TrayTotal is the sum of the tray's line totals.
func TrayTotal(lines []Line) decimal.Decimal {
	return Sum(lines).Total()
}

// ServiceFileTotal sums tray breakdowns and applies the subscription once.
func ServiceFileTotal(trays []Breakdown, mode SubscriptionMode) Breakdown {
	var b Breakdown
	for _, t := range trays {
		b = b.Add(t)
	}
	return ApplySubscription(b, mode)
}

// LeadTotal sums service file breakdowns that already carry their own deduction.
func LeadTotal(serviceFiles []Breakdown) Breakdown {
	var b Breakdown
	for _, sf := range serviceFiles {
		b = b.Add(sf)
	}
	return b
}
