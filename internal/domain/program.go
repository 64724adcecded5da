package domain

import (
	"time"

	"github.com/google/uuid"
)

// Program is unique per (marketing slug, partner).
type Program struct {
	ID                     uint      `gorm:"primaryKey"`
	PartnerID              uint      `gorm:"uniqueIndex:idx_program_slug;not null"`
	MarketingSlug          string    `gorm:"uniqueIndex:idx_program_slug;not null"`
	UUID                   uuid.UUID `gorm:"index"`
	Title                  string
	Subtitle               string
	Status                 string
	TypeID                 *uint
	Type                   *ProgramType
	BannerImageURL         string
	BannerImage            string
	AuthoringOrganizations []Organization `gorm:"many2many:program_authoring_organizations"`
	Courses                []Course       `gorm:"many2many:program_courses"`
	ExcludedCourseRuns     []CourseRun    `gorm:"many2many:program_excluded_course_runs"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
