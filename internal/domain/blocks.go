package domain

import "time"

// Block types used by the courses API filters.
const (
	BlockCourse     = "course"
	BlockChapter    = "chapter"
	BlockSequential = "sequential"
)

type Chapter struct {
	ID                uint   `gorm:"primaryKey"`
	CourseRunID       uint   `gorm:"index;not null"`
	Location          string `gorm:"uniqueIndex;not null"`
	Title             string
	Slug              string
	LMSWebURL         string
	GoalOverride      string
	CourseOrder       int
	Hidden            bool
	MinEffort         *time.Duration
	MaxEffort         *time.Duration
	MinEffortOverride *time.Duration
	MaxEffortOverride *time.Duration
	WordpressPostID   *int64
	Sequentials       []Sequential
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Sequential struct {
	ID              uint  `gorm:"primaryKey"`
	CourseRunID     uint  `gorm:"index;not null"`
	ChapterID       *uint `gorm:"index"`
	ChapterOrder    int
	Location        string `gorm:"uniqueIndex;not null"`
	Title           string
	Slug            string
	LMSWebURL       string
	Hidden          bool
	MinEffort       *time.Duration
	MaxEffort       *time.Duration
	WordpressPostID *int64
	Objectives      []Objective `gorm:"many2many:sequential_objectives"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Objective struct {
	ID          uint `gorm:"primaryKey"`
	Description string
}

// RollupEffort recomputes the chapter's effort from its sequentials unless an
// override is set. Sequentials must be loaded.
func (c *Chapter) RollupEffort() {
	var lo, hi []*time.Duration
	for _, s := range c.Sequentials {
		lo = append(lo, s.MinEffort)
		hi = append(hi, s.MaxEffort)
	}
	c.MinEffort = firstNonNil(c.MinEffortOverride, sumEffort(lo))
	c.MaxEffort = firstNonNil(c.MaxEffortOverride, sumEffort(hi))
}

// RollupEffort sums the effort of the run's visible chapters. Chapters must be loaded.
func (r *CourseRun) RollupEffort() {
	var lo, hi []*time.Duration
	for _, c := range r.Chapters {
		if c.Hidden {
			continue
		}
		lo = append(lo, c.MinEffort)
		hi = append(hi, c.MaxEffort)
	}
	r.MinEffort = sumEffort(lo)
	r.MaxEffort = sumEffort(hi)
}

// sumEffort returns nil when no value is known.
func sumEffort(ds []*time.Duration) *time.Duration {
	var total time.Duration
	known := false
	for _, d := range ds {
		if d == nil {
			continue
		}
		total += *d
		known = true
	}
	if !known {
		return nil
	}
	return &total
}

func firstNonNil(a, b *time.Duration) *time.Duration {
	if a != nil {
		return a
	}
	return b
}
