package marketing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/loaders"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/wordpress"
)

const dateLayout = "2006-01-02 15:04:05-07:00"

// Catalog is the store access serializers need.
type Catalog interface {
	PostIDStore
	ChaptersForRun(ctx context.Context, runID uint) ([]domain.Chapter, error)
	SequentialsForChapter(ctx context.Context, chapterID uint) ([]domain.Sequential, error)
	ObjectivesForSequential(ctx context.Context, seqID uint) ([]domain.Objective, error)
	PublishableCourseRuns(ctx context.Context, partnerID uint, now time.Time) ([]domain.CourseRun, error)
	SaveMediaID(ctx context.Context, run *domain.CourseRun, mediaID int64) error
}

// ImageFetcher downloads card images; the status is returned for the caller to judge.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (int, []byte, error)
}

// Site publishes one partner's course runs, chapters and sequentials as
// WordPress course, module and lesson posts. CMS failures are logged and
// never reach the caller.
type Site struct {
	Runs        *Publisher[domain.CourseRun]
	Chapters    *Publisher[domain.Chapter]
	Sequentials *Publisher[domain.Sequential]

	cms     CMS
	catalog Catalog
	images  ImageFetcher
	partner *domain.Partner
	log     *logger.Logger
	now     func() time.Time
}

var _ loaders.Publisher = (*Site)(nil)

func NewSite(cms CMS, catalog Catalog, partner *domain.Partner, log *logger.Logger) *Site {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Site{
		cms:     cms,
		catalog: catalog,
		partner: partner,
		log:     log.With("component", "marketing", "partner", partner.ShortCode),
		now:     time.Now,
	}
	s.Runs = NewPublisher(cms, catalog, Strategy[domain.CourseRun]{
		PostType:  PostTypeCourseRun,
		Unique:    func(r *domain.CourseRun) string { return r.Key },
		Hidden:    func(r *domain.CourseRun) bool { return r.Hidden },
		CachedID:  func(r *domain.CourseRun) *int64 { return r.WordpressPostID },
		SetID:     func(r *domain.CourseRun, id int64) { r.WordpressPostID = &id },
		Serialize: s.serializeCourseRun,
	}, s.log)
	s.Chapters = NewPublisher(cms, catalog, Strategy[domain.Chapter]{
		PostType:  PostTypeChapter,
		Unique:    func(c *domain.Chapter) string { return c.Location },
		Hidden:    func(c *domain.Chapter) bool { return c.Hidden },
		CachedID:  func(c *domain.Chapter) *int64 { return c.WordpressPostID },
		SetID:     func(c *domain.Chapter, id int64) { c.WordpressPostID = &id },
		Serialize: s.serializeChapter,
	}, s.log)
	s.Sequentials = NewPublisher(cms, catalog, Strategy[domain.Sequential]{
		PostType:  PostTypeSequential,
		Unique:    func(q *domain.Sequential) string { return q.Location },
		Hidden:    func(q *domain.Sequential) bool { return q.Hidden },
		CachedID:  func(q *domain.Sequential) *int64 { return q.WordpressPostID },
		SetID:     func(q *domain.Sequential, id int64) { q.WordpressPostID = &id },
		Serialize: s.serializeSequential,
	}, s.log)
	return s
}

// WithImages lets course run posts carry their card image as the hero
// image, uploaded to the media library on first publish.
func (s *Site) WithImages(images ImageFetcher) *Site {
	s.images = images
	return s
}

func (s *Site) PublishCourseRun(ctx context.Context, run *domain.CourseRun) {
	if err := s.Runs.PublishObj(ctx, run); err != nil {
		s.log.Error("failed to publish course run", "key", run.Key, "error", err)
	}
}

func (s *Site) PublishChapter(ctx context.Context, ch *domain.Chapter) {
	if err := s.Chapters.PublishObj(ctx, ch); err != nil {
		s.log.Error("failed to publish chapter", "location", ch.Location, "error", err)
	}
}

func (s *Site) PublishSequential(ctx context.Context, seq *domain.Sequential) {
	if err := s.Sequentials.PublishObj(ctx, seq); err != nil {
		s.log.Error("failed to publish sequential", "location", seq.Location, "error", err)
	}
}

func (s *Site) UnpublishCourseRun(ctx context.Context, run *domain.CourseRun) {
	s.Runs.DeleteObj(ctx, run)
}

func (s *Site) UnpublishChapter(ctx context.Context, ch *domain.Chapter) {
	s.Chapters.DeleteObj(ctx, ch)
}

func (s *Site) UnpublishSequential(ctx context.Context, seq *domain.Sequential) {
	s.Sequentials.DeleteObj(ctx, seq)
}

// RepublishCourseRuns publishes every run the site should carry. A run that
// fails is logged and counted; only listing the runs can fail the call.
func (s *Site) RepublishCourseRuns(ctx context.Context) (published, failed int, err error) {
	runs, err := s.catalog.PublishableCourseRuns(ctx, s.partner.ID, s.now())
	if err != nil {
		return 0, 0, fmt.Errorf("list publishable course runs: %w", err)
	}
	s.log.Info("republishing course runs", "count", len(runs))
	for i := range runs {
		if err := ctx.Err(); err != nil {
			return published, failed, err
		}
		if err := s.Runs.PublishObj(ctx, &runs[i]); err != nil {
			failed++
			s.log.Error("failed to republish course run", "key", runs[i].Key, "error", err)
			continue
		}
		published++
	}
	s.log.Info("republished course runs", "published", published, "failed", failed)
	return published, failed, nil
}

func (s *Site) serializeSequential(ctx context.Context, seq *domain.Sequential, data Payload) error {
	objectives, err := s.catalog.ObjectivesForSequential(ctx, seq.ID)
	if err != nil {
		return err
	}
	items := make([]map[string]string, 0, len(objectives))
	for _, o := range objectives {
		items = append(items, map[string]string{"objective": o.Description})
	}

	data["title"] = seq.Title
	data["slug"] = seq.Slug
	fields := data.Fields()
	fields["objectives"] = items
	fields["effort"] = effort(seq.MinEffort, seq.MaxEffort)
	data.Meta()["lms_web_url"] = seq.LMSWebURL
	return nil
}

func (s *Site) serializeChapter(ctx context.Context, ch *domain.Chapter, data Payload) error {
	seqs, err := s.catalog.SequentialsForChapter(ctx, ch.ID)
	if err != nil {
		return err
	}
	lessons := make([]int64, 0, len(seqs))
	for i := range seqs {
		seq := &seqs[i]
		id, ok, err := childPostID(ctx, s.Sequentials, seq)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("sequential has no post, leaving it out of its module", "chapter", ch.Location, "location", seq.Location)
			continue
		}
		if seq.Hidden {
			continue
		}
		lessons = append(lessons, id)
	}

	data["title"] = ch.Title
	data["slug"] = ch.Slug
	fields := data.Fields()
	fields["module_lessons"] = lessons
	fields["goal"] = ch.GoalOverride
	fields["effort"] = effort(ch.MinEffort, ch.MaxEffort)
	data.Meta()["lms_web_url"] = ch.LMSWebURL
	return nil
}

func (s *Site) serializeCourseRun(ctx context.Context, run *domain.CourseRun, data Payload) error {
	chapters, err := s.catalog.ChaptersForRun(ctx, run.ID)
	if err != nil {
		return err
	}
	modules := make([]int64, 0, len(chapters))
	for i := range chapters {
		ch := &chapters[i]
		id, ok, err := childPostID(ctx, s.Chapters, ch)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Warn("chapter has no post, leaving it out of its course", "course_run", run.Key, "location", ch.Location)
			continue
		}
		if ch.Hidden {
			continue
		}
		modules = append(modules, id)
	}

	transcripts := []string(run.TranscriptLanguages)
	if transcripts == nil {
		transcripts = []string{}
	}

	data["title"] = run.Title()
	data["slug"] = run.Slug
	fields := data.Fields()
	fields["course_modules"] = modules
	fields["short_description"] = run.ShortDescriptionOverride
	fields["content_overview"] = run.FullDescriptionOverride
	fields["effort"] = effort(run.MinEffort, run.MaxEffort)

	meta := data.Meta()
	meta["registration_url"] = s.registrationURL(run.Key)
	meta["card_image_url"] = run.CardImageURL
	meta["pacing_type"] = run.PacingType
	meta["mobile_available"] = run.MobileAvailable
	meta["invitation_only"] = run.InvitationOnly
	meta["course_start_date"] = formatDate(run.Start)
	meta["course_end_date"] = formatDate(run.End)
	meta["enrollment_start_date"] = formatDate(run.EnrollmentStart)
	meta["enrollment_end_date"] = formatDate(run.EnrollmentEnd)
	meta["language"] = run.Language
	meta["transcript_languages"] = transcripts

	if id, ok := s.heroMediaID(ctx, run); ok {
		fields["hero"] = id
	}
	return nil
}

// heroMediaID returns the media id of the run's card image, uploading the
// image the first time. Failures leave the post without a hero image.
func (s *Site) heroMediaID(ctx context.Context, run *domain.CourseRun) (int64, bool) {
	if run.WordpressMediaID != nil {
		return *run.WordpressMediaID, true
	}
	if s.images == nil || run.CardImageURL == "" {
		return 0, false
	}

	status, body, err := s.images.Fetch(ctx, run.CardImageURL)
	if err != nil || status != http.StatusOK {
		s.log.Warn("failed to download card image", "course_run", run.Key, "url", run.CardImageURL, "status", status, "error", err)
		return 0, false
	}
	id, err := s.cms.CreateMedia(ctx, mediaFilename(run.CardImageURL), "", bytes.NewReader(body))
	if err != nil {
		s.log.Error("failed to upload card image", "course_run", run.Key, "error", err)
		return 0, false
	}
	if err := s.catalog.SaveMediaID(ctx, run, id); err != nil {
		s.log.Warn("failed to record card image media id", "course_run", run.Key, "media_id", id, "error", err)
	}
	run.WordpressMediaID = &id
	return id, true
}

// mediaFilename is the last path segment of an image URL. Asset names look
// like "block@image.jpg"; only the part after the last '@' is kept.
func mediaFilename(raw string) string {
	name := raw
	if u, err := url.Parse(raw); err == nil {
		name = u.Path
	}
	name = path.Base(name)
	if i := strings.LastIndex(name, "@"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == "/" {
		return "card-image"
	}
	return name
}

func (s *Site) registrationURL(key string) string {
	return fmt.Sprintf("%s/register?course_id=%s&enrollment_action=enroll", strings.TrimRight(s.partner.LMSURL, "/"), key)
}

// childPostID resolves a child's post. ok is false when the child has none.
func childPostID[T any](ctx context.Context, p *Publisher[T], child *T) (id int64, ok bool, err error) {
	id, err = p.PostID(ctx, child)
	if errors.Is(err, wordpress.ErrPostLookup) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
