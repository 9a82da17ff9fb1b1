package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/spf13/cobra"
)

type firmwareVersionBody struct {
	LatestVersion string `json:"latestVersion"`
}

func NewCmdFirmwareVersions() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "firmware-versions",
		Aliases: []string{"fw"},
		Short:   "view or edit the known-latest firmware table",
	}
	cmd.AddCommand(newCmdFirmwareList())
	cmd.AddCommand(newCmdFirmwareSet())
	cmd.AddCommand(newCmdFirmwareDelete())
	return cmd
}

func newCmdFirmwareList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list every device-family prefix and its known-latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var versions []model.FirmwareVersion
			if err := client().do(context.Background(), "GET", "/firmware-versions", nil, &versions); err != nil {
				return fmt.Errorf("listing firmware versions: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
			fmt.Fprintln(w, "PREFIX\tLATEST")
			for _, v := range versions {
				fmt.Fprintf(w, "%s\t%s\n", v.DevicePrefix, v.LatestVersion)
			}
			return w.Flush()
		},
		SilenceUsage: true,
	}
}

func newCmdFirmwareSet() *cobra.Command {
	return &cobra.Command{
		Use:   "set PREFIX VERSION",
		Short: "set (or create) the known-latest version for a device-family prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, version := args[0], args[1]
			body := firmwareVersionBody{LatestVersion: version}
			if err := client().do(context.Background(), "PUT", "/firmware-versions/"+prefix, body, nil); err != nil {
				return fmt.Errorf("setting firmware version for %s: %w", prefix, err)
			}
			fmt.Printf("%s -> %s\n", prefix, version)
			return nil
		},
		SilenceUsage: true,
	}
}

func newCmdFirmwareDelete() *cobra.Command {
	return &cobra.Command{
		Use:   "delete PREFIX",
		Short: "remove a device-family prefix from the known-latest table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := args[0]
			if err := client().do(context.Background(), "DELETE", "/firmware-versions/"+prefix, nil, nil); err != nil {
				return fmt.Errorf("deleting firmware version for %s: %w", prefix, err)
			}
			fmt.Printf("%s deleted\n", prefix)
			return nil
		},
		SilenceUsage: true,
	}
}
