package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metricgrid-labs/metricgrid/internal/materialize"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

func newRefreshCmd(d *deps) *cobra.Command {
	var (
		incremental bool
		startDate   string
		endDate     string
	)

	cmd := &cobra.Command{
		Use:   "refresh <model>",
		Short: "Materialize a model's rows from the warehouse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, d.Config(), d.Logger())
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.requireWarehouse(); err != nil {
				return err
			}

			model, err := app.Store.GetModelByName(ctx, args[0])
			if err != nil {
				return err
			}
			if incremental && startDate == "" {
				return fmt.Errorf("--start is required for an incremental refresh")
			}

			started := time.Now()
			job, err := app.Worker.TriggerRefresh(ctx, model.ID, materialize.Options{
				Incremental: incremental,
				StartDate:   startDate,
				EndDate:     endDate,
			})
			if err != nil {
				return err
			}
			app.Worker.Wait()

			job, err = app.Worker.GetJobStatus(ctx, job.ID)
			if err != nil {
				return err
			}
			if job.Status == core.JobStatusError {
				return fmt.Errorf("refresh failed: %s", job.ErrorMessage)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d rows in %s\n",
				model.Name, job.RowsProcessed, time.Since(started).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "rewrite only the given date window")
	cmd.Flags().StringVar(&startDate, "start", "", "window start (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&endDate, "end", "", "window end (YYYY-MM-DD, exclusive; empty for open-ended)")
	return cmd
}
