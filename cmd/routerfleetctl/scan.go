package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type scanRequestBody struct {
	RouterIDs []uuid.UUID `json:"routerIds,omitempty"`
}

func NewCmdScan() *cobra.Command {
	var routerIDs []string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "trigger a firmware check across the fleet (or a subset of routers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body scanRequestBody
			for _, raw := range routerIDs {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid router id %q: %w", raw, err)
				}
				body.RouterIDs = append(body.RouterIDs, id)
			}
			if err := client().do(context.Background(), "POST", "/scan", body, nil); err != nil {
				return fmt.Errorf("starting scan: %w", err)
			}
			fmt.Println("scan started")
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringSliceVar(&routerIDs, "router", nil, "router id to scan (repeatable); omit to scan the whole fleet")
	return cmd
}
