package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/session"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and persist the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			in := api.LoginInput{Email: email, Password: password}
			_, err := s.client.API().Auth.Login.Mutate(ctx, in, mutation.Callbacks[session.User]{})
			if err != nil {
				return errors.New(mutation.Message(err))
			}
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			if err := s.client.Logout(ctx); err != nil {
				return err
			}
			s.printer.Success("Logged out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			u, err := s.requireUser()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(u)
			}
			s.printer.Print("%s <%s>", u.DisplayName(), u.Email)
			s.printer.Print("  id:   %s", u.ID)
			s.printer.Print("  role: %s", u.Role)
			if c := s.client.Session().Confirmation(); c != session.ConfirmationIdle {
				s.printer.Print("  email change: %s", c)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	whoamiCmd.Flags().Bool("json", false, "output as JSON")
}
