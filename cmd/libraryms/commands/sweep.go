package commands

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"libraryms/internal/maintenance"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [" + strings.Join(maintenance.Names(), "|") + "|all]",
	Short: "Run maintenance sweeps once",
	Long: `Run one maintenance sweep, or every sweep in order with "all".

Examples:
  libraryms sweep expire      # Delete reservations past their expiration date
  libraryms sweep all         # Run every sweep`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: append(maintenance.Names(), "all"),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sw := a.sweeper()
		var results []maintenance.Result
		if args[0] == "all" {
			results, err = sw.RunAll(cmd.Context())
		} else {
			var res maintenance.Result
			res, err = sw.Run(cmd.Context(), args[0])
			results = append(results, res)
		}
		for _, res := range results {
			if res.Sweep == "" {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s processed=%d notified=%d\n", res.Sweep, res.Processed, res.Notified)
			log.WithFields(logrus.Fields{"sweep": res.Sweep, "processed": res.Processed}).Debug("sweep finished")
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
