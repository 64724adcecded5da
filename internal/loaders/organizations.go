package loaders

import (
	"context"
	"fmt"
	"strings"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/mappers"
	"catalog-sync/internal/metrics"
	"catalog-sync/internal/providers/organizations"
	"catalog-sync/internal/reconcile"
	"catalog-sync/internal/store"
)

// OrganizationsLoader mirrors the partner's organizations and removes the
// ones upstream no longer lists.
type OrganizationsLoader struct {
	partner *domain.Partner
	api     *organizations.Client
	store   *store.Store
	opts    Options
	log     *logger.Logger
}

func NewOrganizationsLoader(partner *domain.Partner, api *organizations.Client, s *store.Store, opts Options, log *logger.Logger) *OrganizationsLoader {
	return &OrganizationsLoader{
		partner: partner,
		api:     api,
		store:   s,
		opts:    opts,
		log:     log.With("loader", "organizations"),
	}
}

func (l *OrganizationsLoader) Name() string { return "organizations" }

func (l *OrganizationsLoader) Ingest(ctx context.Context) error {
	l.log.Info("refreshing organizations", "url", l.api.API.BaseURL)

	seen := reconcile.NewFoldedKeySet()
	columns := mappers.OrganizationColumns(l.partner.HasMarketingSite())
	count := 0

	for page := 1; ; page++ {
		resp, err := l.api.List(ctx, page, l.opts.pageSize())
		if err != nil {
			return fmt.Errorf("list organizations page %d: %w", page, err)
		}
		count = resp.Count

		for _, in := range resp.Results {
			org := mappers.Organization(l.partner.ID, in)
			seen.Add(org.Key)

			created, err := l.store.UpsertOrganization(ctx, &org, columns...)
			if err != nil {
				return err
			}
			record(l.Name(), outcome(created))
			l.log.Info("processed organization", "key", org.Key, "created", created)
		}

		if !resp.HasNext() {
			break
		}
	}
	l.log.Info("retrieved organizations", "count", count)

	if err := l.deleteMissing(ctx, seen); err != nil {
		return err
	}
	return deleteOrphans(ctx, l.store, l.log)
}

// deleteMissing removes partner organizations whose key, compared
// case-insensitively, was not listed upstream.
func (l *OrganizationsLoader) deleteMissing(ctx context.Context, seen *reconcile.KeySet) error {
	local, err := l.store.ListOrganizations(ctx, l.partner.ID)
	if err != nil {
		return fmt.Errorf("list local organizations: %w", err)
	}
	orphans := reconcile.Orphans(local, func(o domain.Organization) string { return o.Key }, seen)
	if len(orphans) == 0 {
		return nil
	}

	keys := make([]string, 0, len(orphans))
	for _, o := range orphans {
		keys = append(keys, o.Key)
	}
	if err := l.store.DeleteOrganizations(ctx, orphans); err != nil {
		return fmt.Errorf("delete organizations: %w", err)
	}
	metrics.OrphansDeleted.WithLabelValues("organization").Add(float64(len(orphans)))
	l.log.Info("deleted organizations missing upstream", "keys", strings.Join(keys, ","))
	return nil
}
