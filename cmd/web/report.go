package main

import (
	"github.com/spf13/cobra"

	"cohort-dashboard/internal/render"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the retention matrix for one country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so the table can be piped.
			cfg, logger, err := opts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			analytics, err := loadAnalytics(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			if country == "" {
				if countries := analytics.Countries(); len(countries) > 0 {
					country = countries[0]
				}
			}

			return render.WriteTable(cmd.OutOrStdout(), analytics.Retention(cmd.Context(), country))
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "country to report (default: first country in the data)")

	return cmd
}
