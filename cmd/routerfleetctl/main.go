// Command routerfleetctl is the operator-facing CLI for the router fleet
// orchestrator. It speaks JSON over HTTP to the routerfleetd operator API
// (internal/apiserver) and never touches the inventory store directly,
// grounded on cmd/flightctl/main.go's cobra command-tree shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	cmd := NewRouterfleetctlCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRouterfleetctlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routerfleetctl",
		Short: "routerfleetctl controls the router fleet orchestration engine",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8091", "address of the routerfleetd operator API")

	cmd.AddCommand(NewCmdRouters())
	cmd.AddCommand(NewCmdScan())
	cmd.AddCommand(NewCmdSettings())
	cmd.AddCommand(NewCmdFirmwareVersions())
	cmd.AddCommand(NewCmdRollout())
	cmd.AddCommand(NewCmdHistory())
	return cmd
}

func client() *apiClient {
	return newAPIClient(serverAddr)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
