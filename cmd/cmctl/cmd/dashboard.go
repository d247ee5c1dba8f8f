package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsync/cmd/cmctl/internal/output"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show headline stats and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			if _, err := s.requireUser(); err != nil {
				return err
			}
			res := s.client.API().Dashboard.Get(ctx)
			if res.Err != nil {
				return res.Err
			}
			d := res.Data

			s.printer.Header("Stats")
			stats := output.NewTable(cmd.OutOrStdout(), []string{"Metric", "Value"})
			stats.AddRow("Open tickets", strconv.Itoa(d.Stats.OpenTickets))
			stats.AddRow("Avg response time", d.Stats.AvgResponseTime)
			stats.AddRow("Resolution rate", d.Stats.ResolutionRate)
			stats.AddRow("New clients", strconv.Itoa(d.Stats.NewClients))
			if err := stats.Render(); err != nil {
				return err
			}

			if len(d.Activities) == 0 {
				return nil
			}
			s.printer.Header("Recent activity")
			acts := output.NewTable(cmd.OutOrStdout(), []string{"Time", "Title", "Description"})
			for _, a := range d.Activities {
				acts.AddRow(a.Time, a.Title, a.Description)
			}
			return acts.Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
