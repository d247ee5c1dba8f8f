package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/cmsync/api"
	"github.com/MrEthical07/cmsync/cmd/cmctl/internal/output"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Browse scheduled and published posts",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		return run(cmd, func(ctx context.Context, s *cliSession) error {
			if _, err := s.requireUser(); err != nil {
				return err
			}
			res := s.client.API().Posts.List(ctx, page, limit)
			if res.Err != nil {
				return res.Err
			}
			t := output.NewTable(cmd.OutOrStdout(), []string{"ID", "Title", "Platforms", "Status", "Likes"})
			for _, p := range res.Data.Posts {
				t.AddRow(string(p.ID), p.Title, strings.Join(p.Platforms, ","), s.printer.StatusBadge(p.Status), strconv.Itoa(p.Reactions.Likes))
			}
			if err := t.Render(); err != nil {
				return err
			}
			s.printer.Info("page %d, %d of %d posts", page, len(res.Data.Posts), res.Data.Total)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(postsCmd)
	postsCmd.AddCommand(postsListCmd)

	postsListCmd.Flags().Int("page", 1, "page number, from 1")
	postsListCmd.Flags().Int("limit", api.DefaultPostsLimit, "posts per page")
}
