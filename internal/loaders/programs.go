package loaders

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/metrics"
	"catalog-sync/internal/providers/programs"
	"catalog-sync/internal/store"
)

// MediaStore keeps downloaded images and returns the path they were stored under.
type MediaStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ProgramsLoader mirrors programs with their organizations, courses and banner.
type ProgramsLoader struct {
	partner *domain.Partner
	api     *programs.Client
	store   *store.Store
	media   MediaStore
	opts    Options
	log     *logger.Logger
}

func NewProgramsLoader(partner *domain.Partner, api *programs.Client, s *store.Store, media MediaStore, opts Options, log *logger.Logger) *ProgramsLoader {
	return &ProgramsLoader{
		partner: partner,
		api:     api,
		store:   s,
		media:   media,
		opts:    opts,
		log:     log.With("loader", "programs"),
	}
}

func (l *ProgramsLoader) Name() string { return "programs" }

func (l *ProgramsLoader) Ingest(ctx context.Context) error {
	l.log.Info("refreshing programs", "url", l.api.API.BaseURL)

	xseries, err := l.store.ProgramTypeByName(ctx, domain.ProgramTypeXSeries)
	if err != nil {
		return err
	}

	count := 0
	for page := 1; ; page++ {
		resp, err := l.api.List(ctx, page, l.opts.pageSize())
		if err != nil {
			return fmt.Errorf("list programs page %d: %w", page, err)
		}
		count = resp.Count
		l.log.Info("processing programs", "count", len(resp.Results))

		for _, body := range resp.Results {
			err := guard(func() error { return l.updateProgram(ctx, body, xseries) })
			if err != nil {
				record(l.Name(), metrics.OutcomeFailed)
				l.log.Error("failed to load program", "uuid", body.UUID, "error", err)
			}
		}

		if !resp.HasNext() {
			break
		}
	}
	l.log.Info("retrieved programs", "count", count, "url", l.api.API.BaseURL)
	return nil
}

func bannerURL(body programs.Program) string {
	return strings.TrimSpace(body.BannerImageURLs[programs.BannerSize])
}

func (l *ProgramsLoader) updateProgram(ctx context.Context, body programs.Program, xseries *domain.ProgramType) error {
	id, err := uuid.Parse(strings.TrimSpace(body.UUID))
	if err != nil {
		return fmt.Errorf("program uuid %q: %w", body.UUID, err)
	}

	p := domain.Program{
		PartnerID:      l.partner.ID,
		MarketingSlug:  strings.TrimSpace(body.MarketingSlug),
		UUID:           id,
		Title:          strings.TrimSpace(body.Name),
		Subtitle:       strings.TrimSpace(body.Subtitle),
		TypeID:         &xseries.ID,
		Status:         strings.TrimSpace(body.Status),
		BannerImageURL: bannerURL(body),
	}
	created, err := l.store.UpsertProgram(ctx, &p)
	if err != nil {
		return err
	}

	orgs, err := l.programOrganizations(ctx, body)
	if err != nil {
		return err
	}
	courses, excluded, err := l.programCourses(ctx, body)
	if err != nil {
		return err
	}
	if err := l.store.ReplaceProgramRelations(ctx, &p, orgs, courses, excluded); err != nil {
		return err
	}

	l.updateBanner(ctx, &p)
	record(l.Name(), outcome(created))
	l.log.Info("processed program", "slug", p.MarketingSlug, "created", created)
	return nil
}

// programOrganizations resolves the listed keys exactly. A mismatch is
// logged and the known organizations are still attached.
func (l *ProgramsLoader) programOrganizations(ctx context.Context, body programs.Program) ([]domain.Organization, error) {
	keys := body.OrganizationKeys()
	orgs, err := l.store.OrganizationsByKeys(ctx, l.partner.ID, keys)
	if err != nil {
		return nil, err
	}
	if len(orgs) != len(keys) {
		l.log.Error("organizations for program are invalid", "uuid", body.UUID, "keys", strings.Join(keys, ","))
	}
	return orgs, nil
}

// programCourses returns the courses owning any referenced run, and every
// other run of those courses as the excluded set.
func (l *ProgramsLoader) programCourses(ctx context.Context, body programs.Program) ([]domain.Course, []domain.CourseRun, error) {
	runKeys := body.RunKeys()
	courses, err := l.store.CoursesForRunKeys(ctx, runKeys)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]uint, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	runs, err := l.store.CourseRunsForCourses(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	referenced := make(map[string]struct{}, len(runKeys))
	for _, k := range runKeys {
		referenced[k] = struct{}{}
	}
	var excluded []domain.CourseRun
	for _, r := range runs {
		if _, ok := referenced[r.Key]; !ok {
			excluded = append(excluded, r)
		}
	}
	return courses, excluded, nil
}

// updateBanner downloads the banner and stores it. Failures are logged only.
func (l *ProgramsLoader) updateBanner(ctx context.Context, p *domain.Program) {
	if p.BannerImageURL == "" {
		l.log.Warn("no banner image url for program", "title", p.Title)
		return
	}
	if l.media == nil {
		return
	}

	status, body, err := l.api.Download(ctx, p.BannerImageURL)
	if err != nil || status != http.StatusOK {
		l.log.Error("loading the banner image for program failed",
			"url", p.BannerImageURL, "title", p.Title, "status", status, "error", err)
		return
	}

	name := path.Join("programs", p.UUID.String(), "banner.jpg")
	stored, err := l.media.Save(ctx, name, bytes.NewReader(body))
	if err != nil {
		l.log.Error("failed to store banner image", "title", p.Title, "error", err)
		return
	}
	if err := l.store.SetProgramBanner(ctx, p.ID, stored); err != nil {
		l.log.Error("failed to record banner image", "title", p.Title, "error", err)
		return
	}
	p.BannerImage = stored
}
