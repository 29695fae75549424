package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/valuation"
)

type Lead struct {
	ID        uuid.UUID
	FullName  string
	Company   *string
	Phone     *string
	Email     *string
	CreatedAt time.Time
}

// ServiceFile groups the trays of one lead visit.
// OfficeDirect and CourierSent are mutually exclusive.
type ServiceFile struct {
	ID               uuid.UUID
	LeadID           uuid.UUID
	Number           string
	Urgent           bool
	OfficeDirect     bool
	CourierSent      bool
	SubscriptionMode string
	CreatedAt        time.Time
}

type TrayStatus string

const (
	TrayReceived   TrayStatus = "received"
	TrayInProgress TrayStatus = "in_progress"
	TrayDone       TrayStatus = "done"
)

type Tray struct {
	ID            uuid.UUID
	ServiceFileID uuid.UUID
	Number        string
	Size          string
	Status        TrayStatus
	CreatedAt     time.Time
}

// TrayItem is one line in a tray. Exactly one of InstrumentID-only,
// ServiceID or PartID describes what it carries.
type TrayItem struct {
	ID           uuid.UUID
	TrayID       uuid.UUID
	Position     int
	InstrumentID *uuid.UUID
	ServiceID    *uuid.UUID
	PartID       *uuid.UUID
	Name         string
	Quantity     int
	Price        *decimal.Decimal
	DiscountPct  decimal.Decimal
	Urgent       bool
	TechnicianID *uuid.UUID
	PipelineID   *uuid.UUID
	Brands       []Brand
}

// Kind classifies the line for valuation.
func (i TrayItem) Kind() valuation.LineKind {
	switch {
	case i.ServiceID != nil:
		return valuation.LineService
	case i.PartID != nil:
		return valuation.LinePart
	default:
		return valuation.LineInstrument
	}
}

// Brand is a make of instrument inside a tray item.
type Brand struct {
	ID            uuid.UUID
	Name          string
	Warranty      bool
	SerialNumbers []string
}
