package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"catalog-sync/internal/domain"
)

func (s *Store) ProgramTypeByName(ctx context.Context, name string) (*domain.ProgramType, error) {
	pt := domain.ProgramType{}
	if err := s.db.WithContext(ctx).Where(domain.ProgramType{Name: name}).FirstOrCreate(&pt).Error; err != nil {
		return nil, fmt.Errorf("store: program type %s: %w", name, err)
	}
	return &pt, nil
}

// UpsertProgram matches on (marketing slug, partner).
func (s *Store) UpsertProgram(ctx context.Context, p *domain.Program) (bool, error) {
	db := s.db.WithContext(ctx)
	var existing domain.Program
	err := db.Where("partner_id = ? AND marketing_slug = ?", p.PartnerID, p.MarketingSlug).First(&existing).Error
	switch notFound(err) {
	case nil:
		p.ID = existing.ID
		p.BannerImage = existing.BannerImage
		err = db.Model(p).
			Select("uuid", "title", "subtitle", "type_id", "status", "banner_image_url").
			Updates(p).Error
		if err != nil {
			return false, fmt.Errorf("store: update program %s: %w", p.MarketingSlug, err)
		}
		return false, nil
	case ErrNotFound:
		err = db.Omit("Type", "AuthoringOrganizations", "Courses", "ExcludedCourseRuns").Create(p).Error
		if err != nil {
			return false, fmt.Errorf("store: create program %s: %w", p.MarketingSlug, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("store: lookup program %s: %w", p.MarketingSlug, err)
	}
}

// ReplaceProgramRelations swaps the program's organizations, courses and
// excluded runs for the given sets. The join rows are written directly; every
// related row must already carry its primary key.
func (s *Store) ReplaceProgramRelations(ctx context.Context, p *domain.Program, orgs []domain.Organization, courses []domain.Course, excluded []domain.CourseRun) error {
	if p.ID == 0 {
		return fmt.Errorf("store: program %s has no id", p.MarketingSlug)
	}
	orgIDs := make([]uint, 0, len(orgs))
	for _, o := range orgs {
		orgIDs = append(orgIDs, o.ID)
	}
	courseIDs := make([]uint, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
	}
	runIDs := make([]uint, 0, len(excluded))
	for _, r := range excluded {
		runIDs = append(runIDs, r.ID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceJoinRows(tx, "program_authoring_organizations", "organization_id", p.ID, orgIDs); err != nil {
			return err
		}
		if err := replaceJoinRows(tx, "program_courses", "course_id", p.ID, courseIDs); err != nil {
			return err
		}
		return replaceJoinRows(tx, "program_excluded_course_runs", "course_run_id", p.ID, runIDs)
	})
	if err != nil {
		return err
	}
	p.AuthoringOrganizations = orgs
	p.Courses = courses
	p.ExcludedCourseRuns = excluded
	return nil
}

func replaceJoinRows(tx *gorm.DB, table, column string, programID uint, ids []uint) error {
	if err := tx.Exec("DELETE FROM "+table+" WHERE program_id = ?", programID).Error; err != nil {
		return fmt.Errorf("store: clear %s: %w", table, err)
	}
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			return fmt.Errorf("store: %s: related row has no id", table)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		err := tx.Exec("INSERT INTO "+table+" (program_id, "+column+") VALUES (?, ?)", programID, id).Error
		if err != nil {
			return fmt.Errorf("store: set %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) SetProgramBanner(ctx context.Context, programID uint, path string) error {
	return s.db.WithContext(ctx).Model(&domain.Program{ID: programID}).Update("banner_image", path).Error
}

// ProgramBySlug loads the program with its relations.
func (s *Store) ProgramBySlug(ctx context.Context, partnerID uint, slug string) (*domain.Program, error) {
	var p domain.Program
	err := s.db.WithContext(ctx).
		Preload("Type").
		Preload("AuthoringOrganizations").
		Preload("Courses").
		Preload("ExcludedCourseRuns").
		Where("partner_id = ? AND marketing_slug = ?", partnerID, slug).
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
