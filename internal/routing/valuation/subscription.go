package valuation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SubscriptionMode selects which subtotals the subscription discounts.
type SubscriptionMode string

const (
	SubscriptionNone     SubscriptionMode = ""
	SubscriptionServices SubscriptionMode = "services"
	SubscriptionParts    SubscriptionMode = "parts"
	SubscriptionBoth     SubscriptionMode = "both"
)

// ParseSubscriptionMode normalizes a stored mode; unknown values mean none.
func ParseSubscriptionMode(raw string) SubscriptionMode {
	switch SubscriptionMode(strings.ToLower(strings.TrimSpace(raw))) {
	case SubscriptionServices:
		return SubscriptionServices
	case SubscriptionParts:
		return SubscriptionParts
	case SubscriptionBoth:
		return SubscriptionBoth
	}
	return SubscriptionNone
}

func (m SubscriptionMode) coversServices() bool {
	return m == SubscriptionServices || m == SubscriptionBoth
}

func (m SubscriptionMode) coversParts() bool {
	return m == SubscriptionParts || m == SubscriptionBoth
}

// SubscriptionDeduction is 10% of services and 5% of parts, per mode.
func SubscriptionDeduction(b Breakdown, mode SubscriptionMode) decimal.Decimal {
	deduction := decimal.Zero
	if mode.coversServices() {
		deduction = deduction.Add(b.Services.Mul(servicesRate))
	}
	if mode.coversParts() {
		deduction = deduction.Add(b.Parts.Mul(partsRate))
	}
	return deduction
}

// ApplySubscription replaces any previous deduction with the one for mode.
func ApplySubscription(b Breakdown, mode SubscriptionMode) Breakdown {
	b.SubscriptionDeduction = SubscriptionDeduction(b, mode)
	return b
}
