package domain

import "time"

// Partner owns every catalog entity ingested for one upstream deployment.
type Partner struct {
	ID               uint   `gorm:"primaryKey"`
	ShortCode        string `gorm:"uniqueIndex;size:8;not null"`
	Name             string
	LMSURL           string
	MarketingSiteURL string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasMarketingSite reports whether the partner runs an external marketing site.
// When it does, that site owns titles, descriptions and logos.
func (p Partner) HasMarketingSite() bool {
	return p.MarketingSiteURL != ""
}

type Currency struct {
	Code string `gorm:"primaryKey;size:6"`
	Name string
}

type SeatType struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"not null"`
	Slug string `gorm:"uniqueIndex;not null"`
}

type ProgramType struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

const ProgramTypeXSeries = "XSeries"

// DefaultSeatTypes and DefaultCurrencies seed a fresh store.
var DefaultSeatTypes = []SeatType{
	{Name: "Audit", Slug: SeatTypeAudit},
	{Name: "Verified", Slug: SeatTypeVerified},
	{Name: "Professional", Slug: SeatTypeProfessional},
	{Name: "Credit", Slug: SeatTypeCredit},
	{Name: "Honor", Slug: SeatTypeHonor},
	{Name: "Professional (no ID)", Slug: SeatTypeNoIDProfessional},
}

var DefaultCurrencies = []Currency{
	{Code: "USD", Name: "US Dollar"},
	{Code: "EUR", Name: "Euro"},
	{Code: "GBP", Name: "Pound Sterling"},
	{Code: "CAD", Name: "Canadian Dollar"},
	{Code: "INR", Name: "Indian Rupee"},
}
