// Package marketing mirrors catalog entities to a partner's WordPress
// marketing site.
package marketing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"catalog-sync/internal/logger"
	"catalog-sync/internal/wordpress"
)

// ACF field group and field every published post carries to identify its
// catalog entity.
const (
	MetaGroup = "open_edx_meta"
	MetaField = "data_locator"
)

// WordPress post types per entity.
const (
	PostTypeCourseRun  = "course"
	PostTypeChapter    = "module"
	PostTypeSequential = "lesson"
)

const dateModifiedLayout = "2006-01-02 15:04:05.000000"

// CMS is the subset of the WordPress client publishers use.
type CMS interface {
	UserID(ctx context.Context) (int64, error)
	ListPosts(ctx context.Context, postType string) ([]wordpress.Post, error)
	CreatePost(ctx context.Context, postType string, data any) (int64, error)
	EditPost(ctx context.Context, postType string, id int64, data any) error
	DeletePost(ctx context.Context, postType string, id int64) error
	CreateMedia(ctx context.Context, filename, contentType string, r io.Reader) (int64, error)
}

// PostIDStore persists the post id a publisher found or created.
type PostIDStore interface {
	SavePostID(ctx context.Context, model any, postID int64) error
}

// Payload is the JSON body of a post write.
type Payload map[string]any

// Fields returns the ACF fields object.
func (p Payload) Fields() map[string]any {
	return p["fields"].(map[string]any)
}

// Meta returns the identifying field group inside Fields.
func (p Payload) Meta() map[string]any {
	return p.Fields()[MetaGroup].(map[string]any)
}

// Strategy binds a publisher to one entity type.
type Strategy[T any] struct {
	PostType string
	// Unique is the value stored in the data locator field.
	Unique   func(*T) string
	Hidden   func(*T) bool
	CachedID func(*T) *int64
	SetID    func(*T, int64)
	// Serialize adds the entity's own fields to the base payload.
	Serialize func(ctx context.Context, obj *T, data Payload) error
}

// Publisher creates, edits and deletes the post of one entity type.
type Publisher[T any] struct {
	cms      CMS
	ids      PostIDStore
	strategy Strategy[T]
	log      *logger.Logger
	now      func() time.Time
}

func NewPublisher[T any](cms CMS, ids PostIDStore, strategy Strategy[T], log *logger.Logger) *Publisher[T] {
	if log == nil {
		log = logger.NewNop()
	}
	return &Publisher[T]{
		cms:      cms,
		ids:      ids,
		strategy: strategy,
		log:      log.With("post_type", strategy.PostType),
		now:      time.Now,
	}
}

// PostID returns the entity's post id: the cached one when set, otherwise
// the id of the post whose data locator matches, which is then cached.
// Failing to find a post is an ErrPostLookup; a failed listing is returned
// as is.
func (p *Publisher[T]) PostID(ctx context.Context, obj *T) (int64, error) {
	if id := p.strategy.CachedID(obj); id != nil {
		return *id, nil
	}

	unique := p.strategy.Unique(obj)
	op := "lookup " + p.strategy.PostType
	posts, err := p.cms.ListPosts(ctx, p.strategy.PostType)
	if err != nil {
		return 0, err
	}
	for _, post := range posts {
		v, ok, err := post.Field(MetaGroup, MetaField)
		if err != nil {
			return 0, &wordpress.Error{Kind: wordpress.ErrPostLookup, Op: op, PostID: post.ID, Err: err}
		}
		if !ok || v != unique {
			continue
		}
		if err := p.remember(ctx, obj, post.ID); err != nil {
			return 0, err
		}
		return post.ID, nil
	}
	return 0, &wordpress.Error{Kind: wordpress.ErrPostLookup, Op: op, Err: fmt.Errorf("no post for %q", unique)}
}

func (p *Publisher[T]) remember(ctx context.Context, obj *T, id int64) error {
	p.strategy.SetID(obj, id)
	return p.ids.SavePostID(ctx, obj, id)
}

// PublishObj edits the entity's post, or creates one when none is found. A
// listing that failed creates nothing.
func (p *Publisher[T]) PublishObj(ctx context.Context, obj *T) error {
	data, err := p.serialize(ctx, obj)
	if err != nil {
		return err
	}

	id, err := p.PostID(ctx, obj)
	switch {
	case err == nil:
		return p.cms.EditPost(ctx, p.strategy.PostType, id, data)
	case errors.Is(err, wordpress.ErrPostLookup):
		id, err = p.cms.CreatePost(ctx, p.strategy.PostType, data)
		if err != nil {
			return err
		}
		p.log.Info("created post", "locator", p.strategy.Unique(obj), "post_id", id)
		return p.remember(ctx, obj, id)
	default:
		return err
	}
}

// DeleteObj deletes the entity's post. Failures are logged, never returned.
func (p *Publisher[T]) DeleteObj(ctx context.Context, obj *T) {
	unique := p.strategy.Unique(obj)
	id, err := p.PostID(ctx, obj)
	if err != nil {
		p.log.Warn("no post to delete", "locator", unique, "error", err)
		return
	}
	if err := p.cms.DeletePost(ctx, p.strategy.PostType, id); err != nil {
		p.log.Error("failed to delete post", "locator", unique, "post_id", id, "error", err)
		return
	}
	p.log.Info("deleted post", "locator", unique, "post_id", id)
}

func (p *Publisher[T]) serialize(ctx context.Context, obj *T) (Payload, error) {
	userID, err := p.cms.UserID(ctx)
	if err != nil {
		return nil, err
	}
	hidden := 0
	if p.strategy.Hidden(obj) {
		hidden = 1
	}
	data := Payload{
		"status": "publish",
		"fields": map[string]any{
			MetaGroup: map[string]any{
				MetaField:       p.strategy.Unique(obj),
				"date_modified": p.now().UTC().Format(dateModifiedLayout),
				"modified_by":   userID,
				"hidden":        hidden,
			},
		},
	}
	if err := p.strategy.Serialize(ctx, obj, data); err != nil {
		return nil, fmt.Errorf("serialize %s: %w", p.strategy.PostType, err)
	}
	return data, nil
}

// FormatEffort renders a duration as HH:MM:SS. Hours are not wrapped at a
// day; nil and negative durations render as 00:00:00.
func FormatEffort(d *time.Duration) string {
	if d == nil || *d <= 0 {
		return "00:00:00"
	}
	secs := int64(*d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

func effort(lo, hi *time.Duration) map[string]any {
	return map[string]any{
		"estimated_effort": FormatEffort(lo),
		"actual_effort":    FormatEffort(hi),
	}
}
