package cli

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newJobsCmd(d *deps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent refresh jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx, d.Config(), d.Logger())
			if err != nil {
				return err
			}
			defer app.Close()

			jobs, err := app.Store.ListJobs(ctx, limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Model", "Status", "Rows", "Created", "Completed", "Error"})

			for _, job := range jobs {
				completed := ""
				if job.CompletedAt != nil {
					completed = job.CompletedAt.Format(time.RFC3339)
				}
				t.AppendRow(table.Row{
					job.ID,
					job.ModelID,
					job.Status,
					job.RowsProcessed,
					job.CreatedAt.Format(time.RFC3339),
					completed,
					job.ErrorMessage,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	return cmd
}
