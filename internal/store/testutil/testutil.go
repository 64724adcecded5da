package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"catalog-sync/internal/config"
	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/store"
)

var dbSeq atomic.Int64

// Store opens a migrated, seeded in-memory SQLite store private to the test.
func Store(tb testing.TB) *store.Store {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("failed to get sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { sqlDB.Close() })

	s := store.New(db, logger.NewNop(), false)
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate: %v", err)
	}
	if err := s.Seed(ctx); err != nil {
		tb.Fatalf("failed to seed: %v", err)
	}
	return s
}

// Partner creates a partner; a non-empty marketingURL gives it a marketing site.
func Partner(tb testing.TB, s *store.Store, shortCode, marketingURL string) *domain.Partner {
	tb.Helper()
	p, err := s.EnsurePartner(context.Background(), config.PartnerConfig{
		ShortCode:        shortCode,
		LMSURL:           "https://lms.example.com",
		MarketingSiteURL: marketingURL,
	})
	if err != nil {
		tb.Fatalf("failed to create partner: %v", err)
	}
	return p
}

// CourseRun creates a course (if needed) and a run with the given key.
func CourseRun(tb testing.TB, s *store.Store, partner *domain.Partner, key string) *domain.CourseRun {
	tb.Helper()
	ctx := context.Background()
	parsed, err := domain.ParseCourseRunKey(key)
	if err != nil {
		tb.Fatalf("bad course run key: %v", err)
	}
	course, _, err := s.GetOrCreateCourse(ctx, partner.ID, parsed.CourseKey(), parsed.CourseKey())
	if err != nil {
		tb.Fatalf("failed to create course: %v", err)
	}
	run := &domain.CourseRun{CourseID: course.ID, Key: key, Status: domain.CourseRunStatusPublished}
	if err := s.CreateCourseRun(ctx, run); err != nil {
		tb.Fatalf("failed to create course run: %v", err)
	}
	run.Course = course
	return run
}
