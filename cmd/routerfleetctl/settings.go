package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type batchWaitBody struct {
	Minutes int `json:"minutes"`
}

func NewCmdSettings() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "view or change global orchestrator settings",
	}
	cmd.AddCommand(newCmdGetCredentials())
	cmd.AddCommand(newCmdSetCredentials())
	cmd.AddCommand(newCmdGetBatchWait())
	cmd.AddCommand(newCmdSetBatchWait())
	return cmd
}

func newCmdGetCredentials() *cobra.Command {
	return &cobra.Command{
		Use:   "get-credentials",
		Short: "show the configured global SSH username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var creds credentialsBody
			if err := client().do(context.Background(), "GET", "/settings/credentials", nil, &creds); err != nil {
				return fmt.Errorf("fetching credentials: %w", err)
			}
			fmt.Printf("username: %s\n", creds.Username)
			return nil
		},
		SilenceUsage: true,
	}
}

func newCmdSetCredentials() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "set-credentials",
		Short: "set the global SSH username and password used when a router has no override",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("both --username and --password are required")
			}
			body := credentialsBody{Username: username, Password: password}
			if err := client().do(context.Background(), "PUT", "/settings/credentials", body, nil); err != nil {
				return fmt.Errorf("setting credentials: %w", err)
			}
			fmt.Println("global credentials updated")
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&username, "username", "", "global SSH username")
	cmd.Flags().StringVar(&password, "password", "", "global SSH password")
	return cmd
}

func newCmdGetBatchWait() *cobra.Command {
	return &cobra.Command{
		Use:   "get-batch-wait",
		Short: "show the inter-batch pause, in minutes, used by new rollouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body batchWaitBody
			if err := client().do(context.Background(), "GET", "/settings/batch-wait-minutes", nil, &body); err != nil {
				return fmt.Errorf("fetching batch wait minutes: %w", err)
			}
			fmt.Printf("batch wait minutes: %d\n", body.Minutes)
			return nil
		},
		SilenceUsage: true,
	}
}

func newCmdSetBatchWait() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "set-batch-wait",
		Short: "set the inter-batch pause, in minutes, used by new rollouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minutes < 0 {
				return fmt.Errorf("minutes must be >= 0")
			}
			if err := client().do(context.Background(), "PUT", "/settings/batch-wait-minutes", batchWaitBody{Minutes: minutes}, nil); err != nil {
				return fmt.Errorf("setting batch wait minutes: %w", err)
			}
			fmt.Println("batch wait minutes updated")
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "inter-batch pause, in minutes")
	return cmd
}
