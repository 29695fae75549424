package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.String())
	}
}

func TestLineTotal_DiscountThenUrgency(t *testing.T) {
	line := Line{
		Kind:         LineService,
		Quantity:     2,
		CatalogPrice: dec("50"),
		DiscountPct:  dec("10"),
		Urgent:       true,
	}
	assertDecimal(t, "line total", LineTotal(line), "117")
}

func TestLineTotal_OverridePriceWins(t *testing.T) {
	override := dec("20")
	line := Line{Kind: LinePart, Quantity: 3, CatalogPrice: dec("99"), OverridePrice: &override}
	assertDecimal(t, "line total", LineTotal(line), "60")
}

func TestLineTotal_ClampsDiscount(t *testing.T) {
	base := Line{Kind: LineService, Quantity: 1, CatalogPrice: dec("80")}

	negative := base
	negative.DiscountPct = dec("-10")
	assertDecimal(t, "negative discount", LineTotal(negative), "80")

	excessive := base
	excessive.DiscountPct = dec("150")
	assertDecimal(t, "excessive discount", LineTotal(excessive), "0")
}

func TestLineTotal_QuantityBelowOneCountsAsOne(t *testing.T) {
	line := Line{Kind: LineService, Quantity: 0, CatalogPrice: dec("12.5")}
	assertDecimal(t, "line total", LineTotal(line), "12.5")
}

func TestTrayTotal_InstrumentLinesNeverChangeTotal(t *testing.T) {
	lines := []Line{
		{Kind: LineService, Quantity: 1, CatalogPrice: dec("40")},
		{Kind: LinePart, Quantity: 2, CatalogPrice: dec("5")},
	}
	before := TrayTotal(lines)

	withInstrument := append(lines, Line{Kind: LineInstrument, Quantity: 4, CatalogPrice: dec("1000"), Urgent: true})
	after := TrayTotal(withInstrument)

	if !before.Equal(after) {
		t.Fatalf("instrument line changed total: %s -> %s", before, after)
	}
	assertDecimal(t, "tray total", after, "50")
}

func TestServiceFileTotal_SubscriptionBoth(t *testing.T) {
	trays := []Breakdown{
		{Services: dec("150"), Parts: dec("40")},
		{Services: dec("50"), Parts: dec("60")},
	}
	got := ServiceFileTotal(trays, SubscriptionBoth)

	assertDecimal(t, "deduction", got.SubscriptionDeduction, "25")
	assertDecimal(t, "total", got.Total(), "275")
}

func TestServiceFileTotal_SubscriptionModes(t *testing.T) {
	tray := []Breakdown{{Services: dec("200"), Parts: dec("100")}}

	assertDecimal(t, "none", ServiceFileTotal(tray, SubscriptionNone).SubscriptionDeduction, "0")
	assertDecimal(t, "services", ServiceFileTotal(tray, SubscriptionServices).SubscriptionDeduction, "20")
	assertDecimal(t, "parts", ServiceFileTotal(tray, SubscriptionParts).SubscriptionDeduction, "5")
}

func TestServiceFileTotal_NoDoubleApplication(t *testing.T) {
	urgent := Line{Kind: LineService, Quantity: 1, CatalogPrice: dec("100"), DiscountPct: dec("50"), Urgent: true}
	tray := Sum([]Line{urgent})

	sf := ServiceFileTotal([]Breakdown{tray}, SubscriptionNone)
	lead := LeadTotal([]Breakdown{sf})

	assertDecimal(t, "tray", tray.Total(), "65")
	assertDecimal(t, "service file", sf.Total(), "65")
	assertDecimal(t, "lead", lead.Total(), "65")
}

func TestLeadTotal_KeepsPerServiceFileDeductions(t *testing.T) {
	a := ServiceFileTotal([]Breakdown{{Services: dec("100")}}, SubscriptionServices)
	b := ServiceFileTotal([]Breakdown{{Services: dec("100")}}, SubscriptionNone)

	lead := LeadTotal([]Breakdown{a, b})
	assertDecimal(t, "lead total", lead.Total(), "190")
}

func TestParseSubscriptionMode(t *testing.T) {
	cases := map[string]SubscriptionMode{
		"Both":      SubscriptionBoth,
		" services": SubscriptionServices,
		"parts":     SubscriptionParts,
		"gold":      SubscriptionNone,
		"":          SubscriptionNone,
	}
	for raw, want := range cases {
		if got := ParseSubscriptionMode(raw); got != want {
			t.Fatalf("ParseSubscriptionMode(%q) = %q, want %q", raw, got, want)
		}
	}
}
