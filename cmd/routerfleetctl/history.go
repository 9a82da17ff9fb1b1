package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/spf13/cobra"
)

func NewCmdHistory() *cobra.Command {
	var routerID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "show recent update attempts, optionally scoped to one router",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/history?limit=%d", limit)
			if routerID != "" {
				path = "/history?routerId=" + routerID
			}
			var records []store.HistoryWithRouter
			if err := client().do(context.Background(), "GET", path, nil, &records); err != nil {
				return fmt.Errorf("fetching history: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "ROUTER\tIP\tSTATUS\tBEFORE\tAFTER\tSTARTED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.DeviceName, rec.IPAddress, rec.Status,
					derefOr(rec.FirmwareBefore, "-"), derefOr(rec.FirmwareAfter, "-"),
					humanize.Time(rec.StartedAt))
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&routerID, "router", "", "scope history to a single router id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records to return (ignored with --router)")
	return cmd
}
