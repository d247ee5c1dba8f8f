package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsync/cmd/cmctl/internal/output"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Browse the client directory",
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			if _, err := s.requireUser(); err != nil {
				return err
			}
			res := s.client.API().Clients.List(ctx)
			if res.Err != nil {
				return res.Err
			}
			t := output.NewTable(cmd.OutOrStdout(), []string{"ID", "Name", "Email", "Status"})
			for _, c := range res.Data {
				t.AddRow(string(c.ID), c.Name, c.Email, s.printer.StatusBadge(c.Status))
			}
			return t.Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(clientsListCmd)
}
