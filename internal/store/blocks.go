package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"catalog-sync/internal/domain"
)

func (s *Store) ChapterByLocation(ctx context.Context, location string) (*domain.Chapter, error) {
	var ch domain.Chapter
	if err := s.db.WithContext(ctx).Where(iexact("location"), location).First(&ch).Error; err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

func (s *Store) SequentialByLocation(ctx context.Context, location string) (*domain.Sequential, error) {
	var seq domain.Sequential
	if err := s.db.WithContext(ctx).Where(iexact("location"), location).First(&seq).Error; err != nil {
		return nil, notFound(err)
	}
	return &seq, nil
}

func (s *Store) ChaptersForRun(ctx context.Context, runID uint) ([]domain.Chapter, error) {
	var chapters []domain.Chapter
	err := s.db.WithContext(ctx).Where("course_run_id = ?", runID).Order("course_order, id").Find(&chapters).Error
	return chapters, err
}

func (s *Store) SequentialsForRun(ctx context.Context, runID uint) ([]domain.Sequential, error) {
	var seqs []domain.Sequential
	err := s.db.WithContext(ctx).Where("course_run_id = ?", runID).Order("id").Find(&seqs).Error
	return seqs, err
}

// SequentialsForChapter returns the chapter's sequentials with objectives, in chapter order.
func (s *Store) SequentialsForChapter(ctx context.Context, chapterID uint) ([]domain.Sequential, error) {
	var seqs []domain.Sequential
	err := s.db.WithContext(ctx).
		Preload("Objectives").
		Where("chapter_id = ?", chapterID).
		Order("chapter_order, id").
		Find(&seqs).Error
	return seqs, err
}

func (s *Store) ObjectivesForSequential(ctx context.Context, seqID uint) ([]domain.Objective, error) {
	seq := domain.Sequential{ID: seqID}
	var objectives []domain.Objective
	err := s.db.WithContext(ctx).Model(&seq).Order("objectives.id").Association("Objectives").Find(&objectives)
	return objectives, err
}

func (s *Store) CreateChapter(ctx context.Context, ch *domain.Chapter) error {
	if err := s.db.WithContext(ctx).Omit("Sequentials").Create(ch).Error; err != nil {
		return fmt.Errorf("store: create chapter %s: %w", ch.Location, err)
	}
	return nil
}

func (s *Store) UpdateChapter(ctx context.Context, ch *domain.Chapter, columns ...string) error {
	if err := s.db.WithContext(ctx).Model(ch).Select(columns).Updates(ch).Error; err != nil {
		return fmt.Errorf("store: update chapter %s: %w", ch.Location, err)
	}
	return nil
}

func (s *Store) CreateSequential(ctx context.Context, seq *domain.Sequential) error {
	if err := s.db.WithContext(ctx).Omit("Objectives").Create(seq).Error; err != nil {
		return fmt.Errorf("store: create sequential %s: %w", seq.Location, err)
	}
	return nil
}

func (s *Store) UpdateSequential(ctx context.Context, seq *domain.Sequential, columns ...string) error {
	if err := s.db.WithContext(ctx).Model(seq).Select(columns).Updates(seq).Error; err != nil {
		return fmt.Errorf("store: update sequential %s: %w", seq.Location, err)
	}
	return nil
}

// DeleteChapter detaches the chapter's sequentials and removes it.
func (s *Store) DeleteChapter(ctx context.Context, ch domain.Chapter) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Sequential{}).
			Where("chapter_id = ?", ch.ID).
			Updates(map[string]any{"chapter_id": nil, "chapter_order": 0}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Chapter{}, ch.ID).Error
	})
}

func (s *Store) DeleteSequential(ctx context.Context, seq domain.Sequential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM sequential_objectives WHERE sequential_id = ?", seq.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Sequential{}, seq.ID).Error
	})
}

// SetChapterSequentials makes seqs the chapter's children, ordered 0..n-1.
// Sequentials previously in the chapter but absent from seqs are detached.
func (s *Store) SetChapterSequentials(ctx context.Context, ch *domain.Chapter, seqs []domain.Sequential) error {
	ids := make([]uint, 0, len(seqs))
	for _, seq := range seqs {
		ids = append(ids, seq.ID)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		detach := tx.Model(&domain.Sequential{}).Where("chapter_id = ?", ch.ID)
		if len(ids) > 0 {
			detach = detach.Where("id NOT IN ?", ids)
		}
		if err := detach.Updates(map[string]any{"chapter_id": nil, "chapter_order": 0}).Error; err != nil {
			return err
		}
		for i := range seqs {
			seqs[i].ChapterID = &ch.ID
			seqs[i].ChapterOrder = i
			if err := tx.Model(&domain.Sequential{ID: seqs[i].ID}).
				Updates(map[string]any{"chapter_id": ch.ID, "chapter_order": i}).Error; err != nil {
				return err
			}
		}
		ch.Sequentials = seqs
		return nil
	})
}

// SetCourseRunChapters assigns chapters to the run, ordered 0..n-1.
func (s *Store) SetCourseRunChapters(ctx context.Context, run *domain.CourseRun, chapters []domain.Chapter) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range chapters {
			chapters[i].CourseRunID = run.ID
			chapters[i].CourseOrder = i
			if err := tx.Model(&domain.Chapter{ID: chapters[i].ID}).
				Updates(map[string]any{"course_run_id": run.ID, "course_order": i}).Error; err != nil {
				return err
			}
		}
		run.Chapters = chapters
		return nil
	})
}

// RollupEffort recomputes chapter and run effort bounds from their sequentials.
func (s *Store) RollupEffort(ctx context.Context, runID uint) error {
	run, err := s.CourseRunTree(ctx, runID)
	if err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	for i := range run.Chapters {
		ch := &run.Chapters[i]
		ch.RollupEffort()
		if err := db.Model(&domain.Chapter{ID: ch.ID}).
			Select("min_effort", "max_effort").
			Updates(domain.Chapter{MinEffort: ch.MinEffort, MaxEffort: ch.MaxEffort}).Error; err != nil {
			return fmt.Errorf("store: chapter effort %s: %w", ch.Location, err)
		}
	}
	run.RollupEffort()
	return db.Model(&domain.CourseRun{ID: run.ID}).
		Select("min_effort", "max_effort").
		Updates(domain.CourseRun{MinEffort: run.MinEffort, MaxEffort: run.MaxEffort}).Error
}
