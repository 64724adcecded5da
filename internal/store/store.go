package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"catalog-sync/internal/config"
	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
)

var ErrNotFound = errors.New("store: not found")

// Store is the relational entity store shared by loaders and publishers.
type Store struct {
	db         *gorm.DB
	log        *logger.Logger
	concurrent bool
}

func New(db *gorm.DB, log *logger.Logger, concurrentWrites bool) *Store {
	return &Store{db: db, log: log.With("component", "store"), concurrent: concurrentWrites}
}

// Open connects to the configured database. SQLite is always reported as
// unsafe for concurrent writers.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	var dialector gorm.Dialector
	concurrent := cfg.ConcurrentWrites
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
		concurrent = false
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	gormLog := gormLogger.New(
		log.StdLog(),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: sql handle: %w", err)
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return New(db, log, concurrent), nil
}

func (s *Store) DB() *gorm.DB { return s.db }

// ConcurrentWrites reports whether several goroutines may write at once.
// Loaders use it to choose between parallel and serialized page processing.
func (s *Store) ConcurrentWrites() bool { return s.concurrent }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Seed inserts the reference currencies, seat types and program types that
// ingest expects to exist. Existing rows are left alone.
func (s *Store) Seed(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, c := range domain.DefaultCurrencies {
		c := c
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
			return fmt.Errorf("store: seed currency %s: %w", c.Code, err)
		}
	}
	for _, st := range domain.DefaultSeatTypes {
		st := st
		if err := db.Where(domain.SeatType{Slug: st.Slug}).FirstOrCreate(&st).Error; err != nil {
			return fmt.Errorf("store: seed seat type %s: %w", st.Slug, err)
		}
	}
	if _, err := s.ProgramTypeByName(ctx, domain.ProgramTypeXSeries); err != nil {
		return err
	}
	return nil
}

// EnsurePartner creates or refreshes the partner row for the configured short code.
func (s *Store) EnsurePartner(ctx context.Context, cfg config.PartnerConfig) (*domain.Partner, error) {
	p := domain.Partner{}
	err := s.db.WithContext(ctx).
		Where(domain.Partner{ShortCode: cfg.ShortCode}).
		Assign(map[string]any{
			"name":               cfg.Name,
			"lms_url":            cfg.LMSURL,
			"marketing_site_url": cfg.MarketingSiteURL,
		}).
		FirstOrCreate(&p).Error
	if err != nil {
		return nil, fmt.Errorf("store: ensure partner %s: %w", cfg.ShortCode, err)
	}
	return &p, nil
}

// DeleteOrphans removes videos no course run points at any more.
func (s *Store) DeleteOrphans(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("id NOT IN (?)", s.db.Model(&domain.CourseRun{}).Select("video_id").Where("video_id IS NOT NULL")).
		Delete(&domain.Video{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: delete orphan videos: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SavePostID caches the CMS post id on a publishable row. model must carry its primary key.
func (s *Store) SavePostID(ctx context.Context, model any, postID int64) error {
	if err := s.db.WithContext(ctx).Model(model).UpdateColumn("wordpress_post_id", postID).Error; err != nil {
		return fmt.Errorf("store: save post id: %w", err)
	}
	return nil
}

// SaveMediaID caches the CMS media id of a course run's card image.
func (s *Store) SaveMediaID(ctx context.Context, run *domain.CourseRun, mediaID int64) error {
	if err := s.db.WithContext(ctx).Model(run).UpdateColumn("wordpress_media_id", mediaID).Error; err != nil {
		return fmt.Errorf("store: save media id: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// iexact builds a case-insensitive equality condition on column.
func iexact(column string) string {
	return "LOWER(" + column + ") = LOWER(?)"
}
