package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/metricgrid-labs/metricgrid/internal/metric"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

func newMetricCmd(d *deps) *cobra.Command {
	var (
		grain     string
		startDate string
		endDate   string
		dims      []string
		live      bool
	)

	cmd := &cobra.Command{
		Use:   "metric <name>",
		Short: "Evaluate a metric over a date window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, d.Config(), d.Logger())
			if err != nil {
				return err
			}
			defer app.Close()

			dimensions, err := parseDimensionFlags(dims)
			if err != nil {
				return err
			}
			req := metric.Request{
				MetricName: args[0],
				Grain:      core.Grain(grain),
				StartDate:  startDate,
				EndDate:    endDate,
				Dimensions: dimensions,
			}

			var res *metric.Result
			if live {
				if err := app.requireWarehouse(); err != nil {
					return err
				}
				res, err = app.Resolver.FetchMetric(ctx, d.Config().Org, req)
			} else {
				res, err = app.Evaluator.Evaluate(ctx, req)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s, %s) = %g\n", args[0], startDate, endDate, res.Value)
			if res.NoRows {
				fmt.Fprintln(out, "note: no materialized rows for this window (model not yet refreshed?)")
			}
			if res.Cached {
				fmt.Fprintln(out, "(cached)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&grain, "grain", "month", "time grain (day|month|quarter|year)")
	cmd.Flags().StringVar(&startDate, "start", "", "window start (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&endDate, "end", "", "window end (YYYY-MM-DD, exclusive)")
	cmd.Flags().StringArrayVar(&dims, "dim", nil, "dimension filter key=value (repeatable; comma-separated values for membership)")
	cmd.Flags().BoolVar(&live, "live", false, "query the warehouse instead of materialized rows")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// parseDimensionFlags turns repeated key=value flags into the request
// dimension map; a comma-separated value becomes a membership filter.
func parseDimensionFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	dims := make(map[string]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid dimension filter %q, expected key=value", f)
		}
		if strings.Contains(value, ",") {
			dims[key] = strings.Split(value, ",")
		} else {
			dims[key] = value
		}
	}
	return dims, nil
}
