package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/spf13/cobra"
)

func NewCmdRouters() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routers",
		Short: "list or manage the router inventory",
	}
	cmd.AddCommand(newCmdRoutersList())
	cmd.AddCommand(newCmdRoutersStats())
	cmd.AddCommand(newCmdRoutersDeleteAll())
	return cmd
}

func newCmdRoutersList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every router in the fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var routers []model.Router
			if err := client().do(context.Background(), "GET", "/routers", nil, &routers); err != nil {
				return fmt.Errorf("listing routers: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "NAME\tIP\tSTATUS\tCURRENT\tAVAILABLE\tLAST CHECK")
			for _, r := range routers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.DeviceName, r.IPAddress, r.Status, derefOr(r.CurrentFirmware, "-"), derefOr(r.AvailableFirmware, "-"),
					lastCheckOr(r.LastCheck, "never"))
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
}

func newCmdRoutersStats() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "show router counts grouped by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var counts map[model.RouterStatus]int64
			if err := client().do(context.Background(), "GET", "/routers/stats", nil, &counts); err != nil {
				return fmt.Errorf("fetching router stats: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "STATUS\tCOUNT")
			for status, count := range counts {
				fmt.Fprintf(w, "%s\t%d\n", status, count)
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
}

func newCmdRoutersDeleteAll() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "remove every router from the inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("this deletes every router from the inventory; pass --yes to confirm")
			}
			if err := client().do(context.Background(), "DELETE", "/routers", nil, nil); err != nil {
				return fmt.Errorf("deleting routers: %w", err)
			}
			fmt.Println("all routers deleted")
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the deletion")
	return cmd
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func lastCheckOr(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return humanize.Time(*t)
}
