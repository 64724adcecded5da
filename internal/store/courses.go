package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-sync/internal/domain"
)

// CourseRunByKey loads the run and its course. fold selects a
// case-insensitive key match.
func (s *Store) CourseRunByKey(ctx context.Context, key string, fold bool) (*domain.CourseRun, error) {
	q := s.db.WithContext(ctx).Preload("Course")
	if fold {
		q = q.Where(iexact("key"), key)
	} else {
		q = q.Where("key = ?", key)
	}
	var run domain.CourseRun
	if err := q.Order("id").First(&run).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// CourseRunsForPartner lists the partner's runs without associations.
func (s *Store) CourseRunsForPartner(ctx context.Context, partnerID uint) ([]domain.CourseRun, error) {
	var runs []domain.CourseRun
	err := s.db.WithContext(ctx).
		Where("course_id IN (?)", s.db.Model(&domain.Course{}).Select("id").Where("partner_id = ?", partnerID)).
		Order("id").
		Find(&runs).Error
	return runs, err
}

// PublishableCourseRuns lists the partner's runs a marketing site should
// carry: published, visible, not yet ended, still enrollable, with a slug and
// at least one seat.
func (s *Store) PublishableCourseRuns(ctx context.Context, partnerID uint, now time.Time) ([]domain.CourseRun, error) {
	var runs []domain.CourseRun
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("course_id IN (?)", s.db.Model(&domain.Course{}).Select("id").Where("partner_id = ?", partnerID)).
		Where("status = ? AND hidden = ?", domain.CourseRunStatusPublished, false).
		Where("(\"end\" IS NULL OR \"end\" > ?)", now).
		Where("(enrollment_end IS NULL OR enrollment_end > ?)", now).
		Where("slug <> ''").
		Where("EXISTS (SELECT 1 FROM seats WHERE seats.course_run_id = course_runs.id)").
		Order("id").
		Find(&runs).Error
	return runs, err
}

// CourseRunTree loads a run with everything its marketing page needs.
func (s *Store) CourseRunTree(ctx context.Context, runID uint) (*domain.CourseRun, error) {
	var run domain.CourseRun
	err := s.db.WithContext(ctx).
		Preload("Course").
		Preload("Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("course_order, id") }).
		Preload("Chapters.Sequentials", func(db *gorm.DB) *gorm.DB { return db.Order("chapter_order, id") }).
		First(&run, runID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (s *Store) CreateCourseRun(ctx context.Context, run *domain.CourseRun) error {
	if err := s.db.WithContext(ctx).Omit("Course", "Video", "Chapters", "Seats").Create(run).Error; err != nil {
		return fmt.Errorf("store: create course run %s: %w", run.Key, err)
	}
	return nil
}

// UpdateCourseRun writes the listed columns.
func (s *Store) UpdateCourseRun(ctx context.Context, run *domain.CourseRun, columns ...string) error {
	if err := s.db.WithContext(ctx).Model(run).Select(columns).Updates(run).Error; err != nil {
		return fmt.Errorf("store: update course run %s: %w", run.Key, err)
	}
	return nil
}

// DeleteCourseRun removes the run and everything scoped to it.
func (s *Store) DeleteCourseRun(ctx context.Context, run domain.CourseRun) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seqIDs := tx.Model(&domain.Sequential{}).Select("id").Where("course_run_id = ?", run.ID)
		if err := tx.Exec("DELETE FROM sequential_objectives WHERE sequential_id IN (?)", seqIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("course_run_id = ?", run.ID).Delete(&domain.Sequential{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_run_id = ?", run.ID).Delete(&domain.Chapter{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_run_id = ?", run.ID).Delete(&domain.Seat{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM program_excluded_course_runs WHERE course_run_id = ?", run.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Course{}).
			Where("canonical_course_run_id = ?", run.ID).
			Update("canonical_course_run_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.CourseRun{}, run.ID).Error
	})
}

// GetOrCreateCourse matches the course key case-insensitively within the partner.
func (s *Store) GetOrCreateCourse(ctx context.Context, partnerID uint, key, title string) (*domain.Course, bool, error) {
	var course domain.Course
	err := s.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Where(iexact("key"), key).
		Order("id").
		First(&course).Error
	if err == nil {
		return &course, false, nil
	}
	if notFound(err) != ErrNotFound {
		return nil, false, fmt.Errorf("store: lookup course %s: %w", key, err)
	}

	course = domain.Course{PartnerID: partnerID, Key: key, Title: title, UUID: uuid.New()}
	if err := s.db.WithContext(ctx).Omit("AuthoringOrganizations", "CourseRuns").Create(&course).Error; err != nil {
		return nil, false, fmt.Errorf("store: create course %s: %w", key, err)
	}
	return &course, true, nil
}

func (s *Store) CourseByUUID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	var course domain.Course
	if err := s.db.WithContext(ctx).Where("uuid = ?", id).First(&course).Error; err != nil {
		return nil, notFound(err)
	}
	return &course, nil
}

// CourseCanonicalFor returns the course whose canonical run is runID.
func (s *Store) CourseCanonicalFor(ctx context.Context, runID uint) (*domain.Course, error) {
	var course domain.Course
	if err := s.db.WithContext(ctx).Where("canonical_course_run_id = ?", runID).First(&course).Error; err != nil {
		return nil, notFound(err)
	}
	return &course, nil
}

func (s *Store) UpdateCourseTitle(ctx context.Context, courseID uint, title string) error {
	return s.db.WithContext(ctx).Model(&domain.Course{ID: courseID}).Update("title", title).Error
}

func (s *Store) SetCanonicalCourseRun(ctx context.Context, courseID, runID uint) error {
	return s.db.WithContext(ctx).Model(&domain.Course{ID: courseID}).Update("canonical_course_run_id", runID).Error
}

func (s *Store) AddCourseOrganization(ctx context.Context, course *domain.Course, org *domain.Organization) error {
	return s.db.WithContext(ctx).Model(course).Association("AuthoringOrganizations").Append(org)
}

// CoursesForRunKeys returns the distinct courses owning any of the run keys.
func (s *Store) CoursesForRunKeys(ctx context.Context, keys []string) ([]domain.Course, error) {
	var courses []domain.Course
	if len(keys) == 0 {
		return courses, nil
	}
	err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&domain.CourseRun{}).Select("course_id").Where("key IN ?", keys)).
		Order("id").
		Find(&courses).Error
	return courses, err
}

func (s *Store) CourseRunsForCourses(ctx context.Context, courseIDs []uint) ([]domain.CourseRun, error) {
	var runs []domain.CourseRun
	if len(courseIDs) == 0 {
		return runs, nil
	}
	err := s.db.WithContext(ctx).Where("course_id IN ?", courseIDs).Order("id").Find(&runs).Error
	return runs, err
}

func (s *Store) GetOrCreateVideo(ctx context.Context, src string) (*domain.Video, error) {
	v := domain.Video{}
	if err := s.db.WithContext(ctx).Where(domain.Video{Src: src}).FirstOrCreate(&v).Error; err != nil {
		return nil, fmt.Errorf("store: video %s: %w", src, err)
	}
	return &v, nil
}
