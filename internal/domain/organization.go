package domain

import "time"

type Organization struct {
	ID                      uint   `gorm:"primaryKey"`
	PartnerID               uint   `gorm:"index;not null"`
	Key                     string `gorm:"index;not null"`
	Name                    string
	Description             string
	LogoImageURL            string
	CertificateLogoImageURL string
	WordpressPostID         *int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
