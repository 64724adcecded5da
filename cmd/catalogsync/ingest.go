package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"catalog-sync/internal/loaders"
	"catalog-sync/internal/marketing"
	"catalog-sync/internal/media"
	"catalog-sync/internal/providers"
	"catalog-sync/internal/providers/ecommerce"
	"catalog-sync/internal/providers/lms"
	"catalog-sync/internal/providers/organizations"
	"catalog-sync/internal/providers/programs"
	"catalog-sync/internal/wordpress"
)

// ingestOrder is the order "all" runs in; later loaders resolve rows the
// earlier ones created.
var ingestOrder = []string{"organizations", "courses", "ecommerce", "programs"}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "ingest [organizations|courses|ecommerce|programs|all]...",
		Short:     "Reconcile upstream collections into the store",
		ValidArgs: append(slices.Clone(ingestOrder), "all"),
		Args:      cobra.MatchAll(cobra.MinimumNArgs(1), cobra.OnlyValidArgs),
		PreRunE:   a.preRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			selected, err := a.loaders(selectLoaders(args))
			if err != nil {
				return err
			}
			err = loaders.Run(cmd.Context(), a.log, selected...)
			a.log.Info("ingest finished", "elapsed", time.Since(start).String(), "ok", err == nil)
			return err
		},
	}
}

// selectLoaders expands "all" and returns the named loaders in ingest order
// without duplicates.
func selectLoaders(args []string) []string {
	if slices.Contains(args, "all") {
		return slices.Clone(ingestOrder)
	}
	var out []string
	for _, name := range ingestOrder {
		if slices.Contains(args, name) {
			out = append(out, name)
		}
	}
	return out
}

func (a *app) upstream(name, baseURL string) (*providers.Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("upstream.%s_url is not configured", name)
	}
	up := a.cfg.Upstream
	return providers.NewClient(name, baseURL, providers.Options{
		AccessToken: up.AccessToken,
		TokenType:   up.TokenType,
		Timeout:     up.Timeout,
		MaxAttempts: up.MaxAttempts,
	}, a.log), nil
}

func (a *app) loaderOptions() loaders.Options {
	up := a.cfg.Upstream
	return loaders.Options{
		PageSize:   up.PageSize,
		MaxWorkers: up.MaxWorkers,
		Username:   up.Username,
		PageDelay:  up.CoursesPageDelay,
	}
}

// publisher returns the marketing site for the partner, or nil when
// publishing is off.
func (a *app) publisher() (*marketing.Site, error) {
	if !a.cfg.PublishToMarketing() {
		return nil, nil
	}
	cms, err := wordpress.New(a.cfg.Marketing, a.log)
	if err != nil {
		return nil, err
	}
	images := providers.NewClient("images", "", providers.Options{
		Timeout:     a.cfg.Upstream.Timeout,
		MaxAttempts: a.cfg.Upstream.MaxAttempts,
	}, a.log)
	return marketing.NewSite(cms, a.store, a.partner, a.log).WithImages(images), nil
}

func (a *app) loaders(names []string) ([]loaders.Loader, error) {
	up := a.cfg.Upstream
	opts := a.loaderOptions()

	var out []loaders.Loader
	for _, name := range names {
		switch name {
		case "organizations":
			api, err := a.upstream(name, up.OrganizationsURL)
			if err != nil {
				return nil, err
			}
			out = append(out, loaders.NewOrganizationsLoader(a.partner, organizations.New(api), a.store, opts, a.log))
		case "courses":
			api, err := a.upstream(name, up.CoursesURL)
			if err != nil {
				return nil, err
			}
			site, err := a.publisher()
			if err != nil {
				return nil, err
			}
			var pub loaders.Publisher
			if site != nil {
				pub = site
			}
			out = append(out, loaders.NewCoursesLoader(a.partner, lms.New(api), a.store, pub, opts, a.log))
		case "ecommerce":
			api, err := a.upstream(name, up.EcommerceURL)
			if err != nil {
				return nil, err
			}
			out = append(out, loaders.NewEcommerceLoader(a.partner, ecommerce.New(api), a.store, opts, a.log))
		case "programs":
			api, err := a.upstream(name, up.ProgramsURL)
			if err != nil {
				return nil, err
			}
			images, err := media.New(a.cfg.Media)
			if err != nil {
				return nil, err
			}
			out = append(out, loaders.NewProgramsLoader(a.partner, programs.New(api), a.store, images, opts, a.log))
		}
	}
	return out, nil
}
