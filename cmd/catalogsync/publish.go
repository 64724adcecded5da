package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCmd(a *app) *cobra.Command {
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Push stored catalog rows to the marketing site",
	}
	publish.AddCommand(&cobra.Command{
		Use:     "course-runs",
		Short:   "Republish every course run the marketing site should carry",
		Args:    cobra.NoArgs,
		PreRunE: a.preRun,
		RunE: func(cmd *cobra.Command, _ []string) error {
			site, err := a.publisher()
			if err != nil {
				return err
			}
			if site == nil {
				return errors.New("publishing needs marketing.publish_enabled and partner.marketing_site_url")
			}
			published, failed, err := site.RepublishCourseRuns(cmd.Context())
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d course runs failed to publish", failed, published+failed)
			}
			return nil
		},
	})
	return publish
}
