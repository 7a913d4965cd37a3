package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/metricgrid-labs/metricgrid/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// deps gives subcommands access to the loaded config and logger
// without package-level globals.
type deps struct {
	cfg     *config.Config
	verbose bool
}

func (d *deps) Config() *config.Config { return d.cfg }
func (d *deps) Logger() *slog.Logger   { return newLogger(d.verbose) }

// NewRootCmd creates the root command and registers the subcommands.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	d := &deps{}

	rootCmd := &cobra.Command{
		Use:   "metricgrid",
		Short: "metricgrid - warehouse-backed metrics for spreadsheet cells",
		Long: `metricgrid resolves warehouse-backed metrics into spreadsheet-style
cells: it parses formulas, infers time axes from column headers, and
aggregates metrics from live warehouse queries or materialized rows.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			var err error
			d.cfg, err = config.Load(cfgFile)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./metricgrid.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&d.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newServeCmd(d),
		newRefreshCmd(d),
		newJobsCmd(d),
		newMetricCmd(d),
		newVersionCmd(),
	)

	return rootCmd
}
