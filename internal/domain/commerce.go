package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Certificate types carried by e-commerce products.
const (
	SeatTypeAudit            = "audit"
	SeatTypeVerified         = "verified"
	SeatTypeProfessional     = "professional"
	SeatTypeCredit           = "credit"
	SeatTypeHonor            = "honor"
	SeatTypeNoIDProfessional = "no-id-professional"
)

// Seat is unique per (course run, type, credit provider, currency).
type Seat struct {
	ID              uint            `gorm:"primaryKey"`
	CourseRunID     uint            `gorm:"uniqueIndex:idx_seat_identity;not null"`
	Type            string          `gorm:"uniqueIndex:idx_seat_identity;not null"`
	CreditProvider  string          `gorm:"uniqueIndex:idx_seat_identity"`
	CurrencyCode    string          `gorm:"uniqueIndex:idx_seat_identity;size:6;not null"`
	Price           decimal.Decimal `gorm:"type:numeric(10,2)"`
	SKU             string
	BulkSKU         string
	UpgradeDeadline *time.Time
	CreditHours     *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CourseEntitlement is unique per (course, mode).
type CourseEntitlement struct {
	ID           uint `gorm:"primaryKey"`
	CourseID     uint `gorm:"uniqueIndex:idx_entitlement_mode;not null"`
	ModeID       uint `gorm:"uniqueIndex:idx_entitlement_mode;not null"`
	Mode         *SeatType
	PartnerID    uint            `gorm:"index;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(10,2)"`
	CurrencyCode string          `gorm:"size:6;not null"`
	SKU          string          `gorm:"index"`
	Expires      *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
