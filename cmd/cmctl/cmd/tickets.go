package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/cmd/cmctl/internal/output"
	"github.com/MrEthical07/cmsync/mutation"
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Manage support tickets",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			if _, err := s.requireUser(); err != nil {
				return err
			}
			res := s.client.API().Tickets.List(ctx)
			if res.Err != nil {
				return res.Err
			}
			if len(res.Data) == 0 {
				s.printer.Info("No tickets")
				return nil
			}
			t := output.NewTable(cmd.OutOrStdout(), []string{"ID", "Subject", "Priority", "Status", "Client"})
			for _, tk := range res.Data {
				t.AddRow(string(tk.ID), tk.Subject, tk.Priority, s.printer.StatusBadge(tk.Status), tk.Client)
			}
			return t.Render()
		})
	},
}

var ticketsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a ticket",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := api.CreateTicketInput{}
		in.Subject, _ = cmd.Flags().GetString("subject")
		in.Message, _ = cmd.Flags().GetString("message")
		in.Priority, _ = cmd.Flags().GetString("priority")
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			tk, err := s.client.API().Tickets.Create.Mutate(ctx, in, mutation.Callbacks[api.Ticket]{})
			if err != nil {
				return errors.New(mutation.Message(err))
			}
			s.printer.Success("Created ticket %s", tk.ID)
			return nil
		})
	},
}

var ticketsReplyCmd = &cobra.Command{
	Use:   "reply <id> <message>",
	Short: "Reply to a ticket",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := api.ReplyInput{TicketID: args[0], Message: args[1]}
		return ticketAction(cmd, "Replied to", args[0], func(ctx context.Context, a *api.API) error {
			_, err := a.Tickets.Reply.Mutate(ctx, in, mutation.Callbacks[json.RawMessage]{})
			return err
		})
	},
}

var ticketsHideCmd = &cobra.Command{
	Use:   "hide <id>",
	Short: "Hide a ticket from the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketAction(cmd, "Hid", args[0], func(ctx context.Context, a *api.API) error {
			_, err := a.Tickets.Hide.Mutate(ctx, args[0], mutation.Callbacks[json.RawMessage]{})
			return err
		})
	},
}

var ticketsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketAction(cmd, "Deleted", args[0], func(ctx context.Context, a *api.API) error {
			_, err := a.Tickets.Delete.Mutate(ctx, args[0], mutation.Callbacks[json.RawMessage]{})
			return err
		})
	},
}

var ticketsEvaluateCmd = &cobra.Command{
	Use:   "evaluate <id>",
	Short: "Rate a resolved ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := api.EvaluateInput{TicketID: args[0]}
		in.Rating, _ = cmd.Flags().GetInt("rating")
		in.Comment, _ = cmd.Flags().GetString("comment")
		return ticketAction(cmd, "Evaluated", args[0], func(ctx context.Context, a *api.API) error {
			_, err := a.Tickets.Evaluate.Mutate(ctx, in, mutation.Callbacks[json.RawMessage]{})
			return err
		})
	},
}

func ticketAction(cmd *cobra.Command, verb, id string, fn func(ctx context.Context, a *api.API) error) error {
	return run(cmd, func(ctx context.Context, s *cliSession) error {
		if err := fn(ctx, s.client.API()); err != nil {
			return errors.New(mutation.Message(err))
		}
		s.printer.Success("%s ticket %s", verb, id)
		return nil
	})
}

func init() {
	rootCmd.AddCommand(ticketsCmd)
	ticketsCmd.AddCommand(ticketsListCmd, ticketsCreateCmd, ticketsReplyCmd, ticketsHideCmd, ticketsDeleteCmd, ticketsEvaluateCmd)

	ticketsCreateCmd.Flags().String("subject", "", "ticket subject")
	ticketsCreateCmd.Flags().String("message", "", "ticket body")
	ticketsCreateCmd.Flags().String("priority", "medium", "low, medium or high")

	ticketsEvaluateCmd.Flags().Int("rating", 5, "rating from 1 to 5")
	ticketsEvaluateCmd.Flags().String("comment", "", "optional comment")
}
