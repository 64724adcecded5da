package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Course struct {
	ID                     uint      `gorm:"primaryKey"`
	PartnerID              uint      `gorm:"index;not null"`
	UUID                   uuid.UUID `gorm:"uniqueIndex;not null"`
	Key                    string    `gorm:"index;not null"`
	Title                  string
	CanonicalCourseRunID   *uint
	AuthoringOrganizations []Organization `gorm:"many2many:course_authoring_organizations"`
	CourseRuns             []CourseRun
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

const (
	CourseRunStatusPublished   = "published"
	CourseRunStatusUnpublished = "unpublished"

	PacingInstructorPaced = "instructor_paced"
	PacingSelfPaced       = "self_paced"
)

type CourseRun struct {
	ID                       uint `gorm:"primaryKey"`
	CourseID                 uint `gorm:"index;not null"`
	Course                   *Course
	Key                      string `gorm:"uniqueIndex;not null"`
	TitleOverride            string
	ShortDescriptionOverride string
	FullDescriptionOverride  string
	Start                    *time.Time
	End                      *time.Time
	EnrollmentStart          *time.Time
	EnrollmentEnd            *time.Time
	Slug                     string
	License                  string
	CardImageURL             string
	VideoID                  *uint
	Video                    *Video
	Status                   string
	PacingType               string
	MobileAvailable          bool
	InvitationOnly           bool
	Hidden                   bool
	Language                 string
	TranscriptLanguages      datatypes.JSONSlice[string]
	MinEffort                *time.Duration
	MaxEffort                *time.Duration
	WordpressPostID          *int64
	WordpressMediaID         *int64
	Chapters                 []Chapter
	Seats                    []Seat
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Title falls back to the course title when no override was ingested.
func (r CourseRun) Title() string {
	if r.TitleOverride != "" || r.Course == nil {
		return r.TitleOverride
	}
	return r.Course.Title
}

type Video struct {
	ID        uint   `gorm:"primaryKey"`
	Src       string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}
