package loaders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/mappers"
	"catalog-sync/internal/metrics"
	"catalog-sync/internal/providers/lms"
	"catalog-sync/internal/reconcile"
	"catalog-sync/internal/store"
)

// blockFilters lists, per pass, the block types requested from the LMS. Each
// pass asks for its parent type too so children are populated.
var blockFilters = map[string]string{
	domain.BlockSequential: domain.BlockSequential,
	domain.BlockChapter:    domain.BlockChapter + "," + domain.BlockSequential,
	domain.BlockCourse:     domain.BlockCourse + "," + domain.BlockChapter,
}

// blockPasses run in this order: chapters reference sequentials and the
// course block references chapters.
var blockPasses = []string{domain.BlockSequential, domain.BlockChapter, domain.BlockCourse}

// CoursesLoader mirrors course runs and their chapter/sequential outline from
// the LMS courses and blocks APIs.
type CoursesLoader struct {
	partner   *domain.Partner
	api       *lms.Client
	store     *store.Store
	publisher Publisher
	opts      Options
	log       *logger.Logger
}

// NewCoursesLoader wires the loader. publisher is only used when the partner
// has a marketing site; pass nil to disable publishing.
func NewCoursesLoader(partner *domain.Partner, api *lms.Client, s *store.Store, publisher Publisher, opts Options, log *logger.Logger) *CoursesLoader {
	if publisher == nil || !partner.HasMarketingSite() {
		publisher = NopPublisher{}
	}
	return &CoursesLoader{
		partner:   partner,
		api:       api,
		store:     s,
		publisher: publisher,
		opts:      opts,
		log:       log.With("loader", "courses"),
	}
}

func (l *CoursesLoader) Name() string { return "courses" }

func (l *CoursesLoader) Ingest(ctx context.Context) error {
	l.log.Info("refreshing courses, course runs, chapters and sequentials", "url", l.api.API.BaseURL)

	first, err := l.fetchPage(ctx, 1)
	if err != nil {
		return err
	}
	count, pages := first.Pagination.Count, first.Pagination.NumPages

	// Only page 1 is compared against the store; runs listed on later pages
	// are never seen by this sweep.
	if pages > 1 {
		l.log.Warn("course run sweep only considers the first page", "pages", pages)
	}
	if err := l.deleteMissingCourseRuns(ctx, first.Results); err != nil {
		return err
	}
	if err := l.processPage(ctx, first); err != nil {
		return err
	}

	p := newPager(l.opts.MaxWorkers, l.store.ConcurrentWrites(), l.opts.PageDelay)
	err = walkPages(ctx, p, pageRange(2, pages), l.fetchPage, func(ctx context.Context, _ int, page *lms.CoursePage) error {
		return l.processPage(ctx, page)
	})
	if err != nil {
		return err
	}
	l.log.Info("retrieved course runs", "count", count, "url", l.api.API.BaseURL)

	return deleteOrphans(ctx, l.store, l.log)
}

func (l *CoursesLoader) fetchPage(ctx context.Context, page int) (*lms.CoursePage, error) {
	resp, err := l.api.Courses(ctx, page, l.opts.pageSize(), l.opts.Username)
	if err != nil {
		return nil, fmt.Errorf("list courses page %d: %w", page, err)
	}
	return resp, nil
}

// deleteMissingCourseRuns removes the partner's runs absent from results,
// together with their outline, seats and marketing posts.
func (l *CoursesLoader) deleteMissingCourseRuns(ctx context.Context, results []lms.Course) error {
	seen := reconcile.NewKeySet()
	for _, body := range results {
		seen.Add(body.ID)
	}
	local, err := l.store.CourseRunsForPartner(ctx, l.partner.ID)
	if err != nil {
		return fmt.Errorf("list local course runs: %w", err)
	}

	for _, run := range reconcile.Orphans(local, func(r domain.CourseRun) string { return r.Key }, seen) {
		l.unpublishOutline(ctx, run.ID)
		l.publisher.UnpublishCourseRun(ctx, &run)
		if err := l.store.DeleteCourseRun(ctx, run); err != nil {
			return fmt.Errorf("delete course run %s: %w", run.Key, err)
		}
		metrics.OrphansDeleted.WithLabelValues("course_run").Inc()
		l.log.Info("deleted course run missing upstream", "key", run.Key)
	}
	return nil
}

func (l *CoursesLoader) unpublishOutline(ctx context.Context, runID uint) {
	chapters, err := l.store.ChaptersForRun(ctx, runID)
	if err != nil {
		l.log.Error("failed to list chapters for unpublish", "course_run_id", runID, "error", err)
	}
	for i := range chapters {
		l.publisher.UnpublishChapter(ctx, &chapters[i])
	}
	seqs, err := l.store.SequentialsForRun(ctx, runID)
	if err != nil {
		l.log.Error("failed to list sequentials for unpublish", "course_run_id", runID, "error", err)
	}
	for i := range seqs {
		l.publisher.UnpublishSequential(ctx, &seqs[i])
	}
}

// processPage upserts every visible run on the page and refreshes its outline.
// A failing run is logged and skipped; a failing blocks request aborts.
func (l *CoursesLoader) processPage(ctx context.Context, page *lms.CoursePage) error {
	l.log.Info("processing course runs", "count", len(page.Results))

	for _, body := range page.Results {
		// Runs hidden from the catalog are neither stored nor published.
		if body.Hidden {
			record(l.Name(), metrics.OutcomeSkipped)
			continue
		}

		var run *domain.CourseRun
		err := guard(func() error {
			var err error
			run, err = l.upsertCourseRun(ctx, body)
			return err
		})
		if err != nil {
			record(l.Name(), metrics.OutcomeFailed)
			l.log.Error("failed to update course run", "key", body.ID, "url", l.api.API.BaseURL, "error", err)
			continue
		}

		for _, pass := range blockPasses {
			if err := l.loadBlocks(ctx, run, body.ID, pass); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *CoursesLoader) upsertCourseRun(ctx context.Context, body lms.Course) (*domain.CourseRun, error) {
	detail, err := l.api.CourseDetail(ctx, body.ID, l.opts.Username)
	if err != nil {
		return nil, err
	}
	in := mappers.CourseRun(body, detail.Overview)
	if uri := mappers.VideoURI(body); uri != "" {
		video, err := l.store.GetOrCreateVideo(ctx, uri)
		if err != nil {
			return nil, err
		}
		in.VideoID = &video.ID
	}

	run, err := l.store.CourseRunByKey(ctx, body.ID, true)
	switch {
	case err == nil:
		return l.updateCourseRun(ctx, run, in, body)
	case errors.Is(err, store.ErrNotFound):
		return l.createCourseRun(ctx, in, body)
	default:
		return nil, err
	}
}

// updateCourseRun overwrites the ingested fields without publishing.
func (l *CoursesLoader) updateCourseRun(ctx context.Context, run *domain.CourseRun, in domain.CourseRun, body lms.Course) (*domain.CourseRun, error) {
	in.ID = run.ID
	in.CourseID = run.CourseID
	in.Course = run.Course
	in.Language = run.Language
	in.TranscriptLanguages = run.TranscriptLanguages
	in.MinEffort = run.MinEffort
	in.MaxEffort = run.MaxEffort
	in.WordpressPostID = run.WordpressPostID
	if err := l.store.UpdateCourseRun(ctx, &in, mappers.CourseRunColumns...); err != nil {
		return nil, err
	}
	record(l.Name(), metrics.OutcomeUpdated)
	l.log.Info("processed course run", "key", in.Key)

	// A marketing site owns course titles.
	if l.partner.HasMarketingSite() {
		return &in, nil
	}
	course, err := l.store.CourseCanonicalFor(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &in, nil
	}
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(body.Name)
	if err := l.store.UpdateCourseTitle(ctx, course.ID, title); err != nil {
		return nil, err
	}
	course.Title = title
	if in.Course != nil && in.Course.ID == course.ID {
		in.Course.Title = title
	}
	l.log.Info("processed course", "key", course.Key)
	return &in, nil
}

// createCourseRun stores a new run, creating its course on first sight, and publishes it.
func (l *CoursesLoader) createCourseRun(ctx context.Context, in domain.CourseRun, body lms.Course) (*domain.CourseRun, error) {
	key, err := domain.ParseCourseRunKey(body.ID)
	if err != nil {
		return nil, err
	}
	course, created, err := l.store.GetOrCreateCourse(ctx, l.partner.ID, key.CourseKey(), strings.TrimSpace(body.Name))
	if err != nil {
		return nil, err
	}
	if created {
		// The key's org segment is unique per organization; display names are not.
		org, err := l.store.GetOrCreateOrganization(ctx, l.partner.ID, key.Org)
		if err != nil {
			return nil, err
		}
		if err := l.store.AddCourseOrganization(ctx, course, org); err != nil {
			return nil, fmt.Errorf("attach organization %s: %w", key.Org, err)
		}
	}

	in.CourseID = course.ID
	in.Course = course
	if err := l.store.CreateCourseRun(ctx, &in); err != nil {
		return nil, err
	}
	if created {
		if err := l.store.SetCanonicalCourseRun(ctx, course.ID, in.ID); err != nil {
			return nil, err
		}
		course.CanonicalCourseRunID = &in.ID
	}
	record(l.Name(), metrics.OutcomeCreated)
	l.log.Info("created course run", "key", in.Key, "course_created", created)

	l.publisher.PublishCourseRun(ctx, &in)
	return &in, nil
}

// loadBlocks runs one outline pass for the run.
func (l *CoursesLoader) loadBlocks(ctx context.Context, run *domain.CourseRun, courseID, pass string) error {
	resp, err := l.api.Blocks(ctx, courseID, l.opts.Username, blockFilters[pass])
	if err != nil {
		return fmt.Errorf("list %s blocks for %s: %w", pass, courseID, err)
	}
	l.log.Info("retrieved blocks", "count", len(resp.Blocks), "pass", pass, "course_run", courseID)

	switch pass {
	case domain.BlockSequential:
		if err := l.deleteMissingSequentials(ctx, run, resp.Blocks); err != nil {
			return err
		}
	case domain.BlockChapter:
		if err := l.deleteMissingChapters(ctx, run, resp.Blocks); err != nil {
			return err
		}
	}

	for _, id := range slices.Sorted(maps.Keys(resp.Blocks)) {
		b := resp.Blocks[id]
		if b.Type != pass {
			l.log.Debug("skipping block outside pass", "block", id, "type", b.Type, "pass", pass)
			continue
		}
		err := guard(func() error {
			switch pass {
			case domain.BlockSequential:
				return l.upsertSequential(ctx, run, b)
			case domain.BlockChapter:
				return l.upsertChapter(ctx, run, b)
			default:
				return l.orderChapters(ctx, run, b)
			}
		})
		if err != nil {
			l.log.Error("failed to update block", "block", b.ID, "url", l.api.API.BaseURL, "error", err)
		}
	}
	return nil
}

func blockLocations(blocks map[string]lms.Block) *reconcile.KeySet {
	seen := reconcile.NewKeySet()
	for _, b := range blocks {
		seen.Add(b.ID)
	}
	return seen
}

func (l *CoursesLoader) deleteMissingSequentials(ctx context.Context, run *domain.CourseRun, blocks map[string]lms.Block) error {
	local, err := l.store.SequentialsForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list sequentials for %s: %w", run.Key, err)
	}
	for _, seq := range reconcile.Orphans(local, func(s domain.Sequential) string { return s.Location }, blockLocations(blocks)) {
		l.publisher.UnpublishSequential(ctx, &seq)
		if err := l.store.DeleteSequential(ctx, seq); err != nil {
			return fmt.Errorf("delete sequential %s: %w", seq.Location, err)
		}
		metrics.OrphansDeleted.WithLabelValues("sequential").Inc()
		l.log.Info("deleted sequential missing upstream", "location", seq.Location)
	}
	return nil
}

func (l *CoursesLoader) deleteMissingChapters(ctx context.Context, run *domain.CourseRun, blocks map[string]lms.Block) error {
	local, err := l.store.ChaptersForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("list chapters for %s: %w", run.Key, err)
	}
	for _, ch := range reconcile.Orphans(local, func(c domain.Chapter) string { return c.Location }, blockLocations(blocks)) {
		l.publisher.UnpublishChapter(ctx, &ch)
		if err := l.store.DeleteChapter(ctx, ch); err != nil {
			return fmt.Errorf("delete chapter %s: %w", ch.Location, err)
		}
		metrics.OrphansDeleted.WithLabelValues("chapter").Inc()
		l.log.Info("deleted chapter missing upstream", "location", ch.Location)
	}
	return nil
}

func (l *CoursesLoader) upsertSequential(ctx context.Context, run *domain.CourseRun, b lms.Block) error {
	in := mappers.Sequential(run.ID, b)

	existing, err := l.store.SequentialByLocation(ctx, b.ID)
	switch {
	case err == nil:
		in.ID = existing.ID
		in.ChapterID = existing.ChapterID
		in.ChapterOrder = existing.ChapterOrder
		in.MinEffort = existing.MinEffort
		in.MaxEffort = existing.MaxEffort
		in.WordpressPostID = existing.WordpressPostID
		if err := l.store.UpdateSequential(ctx, &in, mappers.BlockColumns...); err != nil {
			return err
		}
		l.log.Info("processed sequential", "location", in.Location)
	case errors.Is(err, store.ErrNotFound):
		if err := l.store.CreateSequential(ctx, &in); err != nil {
			return err
		}
		l.log.Info("created sequential", "location", in.Location)
	default:
		return err
	}

	l.publisher.PublishSequential(ctx, &in)
	return nil
}

func (l *CoursesLoader) upsertChapter(ctx context.Context, run *domain.CourseRun, b lms.Block) error {
	in := mappers.Chapter(run.ID, b)

	existing, err := l.store.ChapterByLocation(ctx, b.ID)
	switch {
	case err == nil:
		in.ID = existing.ID
		in.CourseOrder = existing.CourseOrder
		in.GoalOverride = existing.GoalOverride
		in.MinEffort = existing.MinEffort
		in.MaxEffort = existing.MaxEffort
		in.MinEffortOverride = existing.MinEffortOverride
		in.MaxEffortOverride = existing.MaxEffortOverride
		in.WordpressPostID = existing.WordpressPostID
		if err := l.orderSequentials(ctx, &in, b.Children); err != nil {
			return err
		}
		if err := l.store.UpdateChapter(ctx, &in, mappers.BlockColumns...); err != nil {
			return err
		}
		l.log.Info("processed chapter", "location", in.Location)
	case errors.Is(err, store.ErrNotFound):
		if err := l.store.CreateChapter(ctx, &in); err != nil {
			return err
		}
		if err := l.orderSequentials(ctx, &in, b.Children); err != nil {
			return err
		}
		l.log.Info("created chapter", "location", in.Location)
	default:
		return err
	}

	l.publisher.PublishChapter(ctx, &in)
	return nil
}

// orderSequentials attaches the known children to the chapter in listed
// order. Unknown children are skipped; with none known the chapter is left as is.
func (l *CoursesLoader) orderSequentials(ctx context.Context, ch *domain.Chapter, children []string) error {
	var seqs []domain.Sequential
	for _, child := range children {
		seq, err := l.store.SequentialByLocation(ctx, child)
		if errors.Is(err, store.ErrNotFound) {
			l.log.Info("skipping unknown sequential", "chapter", ch.Location, "location", child)
			continue
		}
		if err != nil {
			return err
		}
		seqs = append(seqs, *seq)
	}
	if len(seqs) == 0 {
		return nil
	}
	return l.store.SetChapterSequentials(ctx, ch, seqs)
}

// orderChapters applies the course block's chapter order, rolls effort up
// and publishes the run with its outline.
func (l *CoursesLoader) orderChapters(ctx context.Context, run *domain.CourseRun, b lms.Block) error {
	var chapters []domain.Chapter
	for _, child := range b.Children {
		ch, err := l.store.ChapterByLocation(ctx, child)
		if errors.Is(err, store.ErrNotFound) {
			l.log.Info("skipping unknown chapter", "course_run", run.Key, "location", child)
			continue
		}
		if err != nil {
			return err
		}
		chapters = append(chapters, *ch)
	}
	if len(chapters) == 0 {
		return nil
	}
	if err := l.store.SetCourseRunChapters(ctx, run, chapters); err != nil {
		return err
	}
	if err := l.store.RollupEffort(ctx, run.ID); err != nil {
		return err
	}

	tree, err := l.store.CourseRunTree(ctx, run.ID)
	if err != nil {
		return err
	}
	l.publisher.PublishCourseRun(ctx, tree)
	return nil
}
