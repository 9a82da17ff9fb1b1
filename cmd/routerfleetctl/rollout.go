package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/spf13/cobra"
)

type startRolloutBody struct {
	RouterIDs     []uuid.UUID `json:"routerIds,omitempty"`
	BatchSize     int         `json:"batchSize"`
	IncludeErrors bool        `json:"includeErrors"`
}

func NewCmdRollout() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "start, inspect, or cancel fleet firmware rollouts",
	}
	cmd.AddCommand(newCmdRolloutStart())
	cmd.AddCommand(newCmdRolloutList())
	cmd.AddCommand(newCmdRolloutGet())
	cmd.AddCommand(newCmdRolloutCancel())
	return cmd
}

func newCmdRolloutStart() *cobra.Command {
	var routerIDs []string
	var batchSize int
	var includeErrors bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a batched firmware rollout across the fleet (or a subset of routers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body startRolloutBody
			for _, raw := range routerIDs {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid router id %q: %w", raw, err)
				}
				body.RouterIDs = append(body.RouterIDs, id)
			}
			body.BatchSize = batchSize
			body.IncludeErrors = includeErrors

			var job model.BatchJob
			if err := client().do(context.Background(), "POST", "/rollouts", body, &job); err != nil {
				return fmt.Errorf("starting rollout: %w", err)
			}
			fmt.Printf("rollout %s started, %d routers, batch size %d\n", job.ID, job.TotalRouters, job.BatchSize)
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringSliceVar(&routerIDs, "router", nil, "router id to include (repeatable); omit to target the whole fleet")
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "number of routers updated concurrently per batch")
	cmd.Flags().BoolVar(&includeErrors, "include-errors", false, "also target routers currently in an error or unreachable state")
	return cmd
}

func newCmdRolloutList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every rollout job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobs []model.BatchJob
			if err := client().do(context.Background(), "GET", "/rollouts", nil, &jobs); err != nil {
				return fmt.Errorf("listing rollouts: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTOTAL\tCOMPLETED\tFAILED")
			for _, j := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", j.ID, j.Status, j.TotalRouters, j.CompletedRouters, j.FailedRouters)
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
}

func newCmdRolloutGet() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "show a single rollout job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job model.BatchJob
			if err := client().do(context.Background(), "GET", "/rollouts/"+args[0], nil, &job); err != nil {
				return fmt.Errorf("fetching rollout %s: %w", args[0], err)
			}
			fmt.Printf("id:        %s\n", job.ID)
			fmt.Printf("status:    %s\n", job.Status)
			fmt.Printf("total:     %d\n", job.TotalRouters)
			fmt.Printf("completed: %d\n", job.CompletedRouters)
			fmt.Printf("failed:    %d\n", job.FailedRouters)
			return nil
		},
		SilenceUsage: true,
	}
}

func newCmdRolloutCancel() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "cancel a running rollout after its current batch finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do(context.Background(), "POST", "/rollouts/"+args[0]+"/cancel", nil, nil); err != nil {
				return fmt.Errorf("cancelling rollout %s: %w", args[0], err)
			}
			fmt.Printf("rollout %s cancelled\n", args[0])
			return nil
		},
		SilenceUsage: true,
	}
}
