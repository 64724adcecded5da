package mappers

import (
	"strings"
	"time"

	"github.com/gosimple/slug"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/providers/lms"
	"catalog-sync/internal/providers/organizations"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseDate reads the ISO-8601 timestamps the upstream APIs emit. Empty,
// null and unparseable values become nil.
func ParseDate(v *string) *time.Time {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Slug builds a stable slug from a display name plus a disambiguating suffix.
func Slug(name, suffix string) string {
	return slug.Make(strings.TrimSpace(name + " " + suffix))
}

// Pacing maps the LMS pacing label onto the stored pacing type.
func Pacing(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "instructor":
		return domain.PacingInstructorPaced
	case "self":
		return domain.PacingSelfPaced
	}
	return ""
}

// Organization maps an upstream organization. Name, description and logo are
// only meaningful when the partner has no marketing site; callers choose the
// columns to write.
func Organization(partnerID uint, in organizations.Organization) domain.Organization {
	logo := ""
	if in.Logo != nil {
		logo = strings.TrimSpace(*in.Logo)
	}
	return domain.Organization{
		PartnerID:               partnerID,
		Key:                     strings.TrimSpace(in.Key),
		Name:                    strings.TrimSpace(in.Name),
		Description:             strings.TrimSpace(in.Description),
		LogoImageURL:            logo,
		CertificateLogoImageURL: logo,
	}
}

// OrganizationColumns lists what ingest may overwrite on an organization.
func OrganizationColumns(hasMarketingSite bool) []string {
	if hasMarketingSite {
		return []string{"certificate_logo_image_url"}
	}
	return []string{"name", "description", "logo_image_url", "certificate_logo_image_url"}
}

// CourseRun maps a listed course run. The full description comes from the
// single-course endpoint and is passed in.
func CourseRun(in lms.Course, fullDescription string) domain.CourseRun {
	key, err := domain.ParseCourseRunKey(in.ID)
	suffix := in.ID
	if err == nil {
		suffix = key.Run
	}
	return domain.CourseRun{
		Key:                      strings.TrimSpace(in.ID),
		Start:                    ParseDate(in.Start),
		End:                      ParseDate(in.End),
		EnrollmentStart:          ParseDate(in.EnrollmentStart),
		EnrollmentEnd:            ParseDate(in.EnrollmentEnd),
		Slug:                     Slug(in.Name, suffix),
		Hidden:                   in.Hidden,
		License:                  strings.TrimSpace(in.License),
		CardImageURL:             strings.TrimSpace(in.Media.Image.Raw),
		TitleOverride:            strings.TrimSpace(in.Name),
		ShortDescriptionOverride: strings.TrimSpace(in.ShortDescription),
		FullDescriptionOverride:  strings.TrimSpace(fullDescription),
		Status:                   domain.CourseRunStatusPublished,
		PacingType:               Pacing(in.Pacing),
		MobileAvailable:          in.MobileAvailable,
		InvitationOnly:           in.InvitationOnly,
	}
}

// CourseRunColumns lists what ingest overwrites on an existing run.
var CourseRunColumns = []string{
	"key", "start", "end", "enrollment_start", "enrollment_end", "slug", "hidden", "license",
	"card_image_url", "title_override", "short_description_override", "full_description_override",
	"video_id", "status", "pacing_type", "mobile_available", "invitation_only",
}

// VideoURI returns the course video URI, if any.
func VideoURI(in lms.Course) string {
	if in.Media.CourseVideo.URI == nil {
		return ""
	}
	return strings.TrimSpace(*in.Media.CourseVideo.URI)
}

// Chapter maps a chapter block.
func Chapter(runID uint, b lms.Block) domain.Chapter {
	return domain.Chapter{
		CourseRunID: runID,
		Location:    b.ID,
		LMSWebURL:   b.LMSWebURL,
		Title:       strings.TrimSpace(b.DisplayName),
		Slug:        Slug(b.DisplayName, b.BlockID),
		Hidden:      false,
	}
}

// Sequential maps a sequential block.
func Sequential(runID uint, b lms.Block) domain.Sequential {
	return domain.Sequential{
		CourseRunID: runID,
		Location:    b.ID,
		LMSWebURL:   b.LMSWebURL,
		Title:       strings.TrimSpace(b.DisplayName),
		Slug:        Slug(b.DisplayName, b.BlockID),
		Hidden:      false,
	}
}

// BlockColumns lists what ingest overwrites on an existing chapter or sequential.
var BlockColumns = []string{"course_run_id", "location", "lms_web_url", "title", "slug", "hidden"}
