package loaders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/metrics"
	"catalog-sync/internal/store"
)

// ErrMissingReference marks an upstream record that points at something the
// store does not have (a currency, a course, a seat type). Such records are
// logged and skipped.
var ErrMissingReference = errors.New("missing reference")

// Loader reconciles one upstream collection into the store.
type Loader interface {
	Name() string
	Ingest(ctx context.Context) error
}

// Options tune how a loader pages through its upstream.
type Options struct {
	PageSize   int
	MaxWorkers int
	// Username is sent to the LMS, which filters by what that user can see.
	Username string
	// PageDelay paces Courses page submissions. Zero disables the throttle.
	PageDelay time.Duration
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return 50
	}
	return o.PageSize
}

// Publisher mirrors saved catalog rows onto the partner's marketing site.
// Implementations log and absorb their own failures.
type Publisher interface {
	PublishCourseRun(ctx context.Context, run *domain.CourseRun)
	PublishChapter(ctx context.Context, ch *domain.Chapter)
	PublishSequential(ctx context.Context, seq *domain.Sequential)
	UnpublishCourseRun(ctx context.Context, run *domain.CourseRun)
	UnpublishChapter(ctx context.Context, ch *domain.Chapter)
	UnpublishSequential(ctx context.Context, seq *domain.Sequential)
}

// NopPublisher is used when the partner has no marketing site or publishing is off.
type NopPublisher struct{}

func (NopPublisher) PublishCourseRun(context.Context, *domain.CourseRun) {}
func (NopPublisher) PublishChapter(context.Context, *domain.Chapter) {}
func (NopPublisher) PublishSequential(context.Context, *domain.Sequential) {}
func (NopPublisher) UnpublishCourseRun(context.Context, *domain.CourseRun) {}
func (NopPublisher) UnpublishChapter(context.Context, *domain.Chapter) {}
func (NopPublisher) UnpublishSequential(context.Context, *domain.Sequential) {}

// Run ingests each loader in turn and stops at the first failure.
func Run(ctx context.Context, log *logger.Logger, loaders ...Loader) error {
	for _, l := range loaders {
		start := time.Now()
		log.Info("ingest started", "loader", l.Name())

		err := l.Ingest(ctx)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IngestDuration.WithLabelValues(l.Name(), status).Observe(time.Since(start).Seconds())
		if err != nil {
			log.Error("ingest failed", "loader", l.Name(), "error", err)
			return fmt.Errorf("%s: %w", l.Name(), err)
		}
		log.Info("ingest finished", "loader", l.Name(), "elapsed", time.Since(start).String())
	}
	return nil
}

func record(loader, outcome string) {
	metrics.IngestRecords.WithLabelValues(loader, outcome).Inc()
}

func outcome(created bool) string {
	if created {
		return metrics.OutcomeCreated
	}
	return metrics.OutcomeUpdated
}

// deleteOrphans drops videos no course run references. The organization,
// course and e-commerce loaders end with it.
func deleteOrphans(ctx context.Context, s *store.Store, log *logger.Logger) error {
	n, err := s.DeleteOrphans(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.OrphansDeleted.WithLabelValues("video").Add(float64(n))
		log.Info("deleted orphan videos", "count", n)
	}
	return nil
}

// guard runs fn and turns a panic into an error, so one bad record cannot
// take the page down with it.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
