package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	cmd := NewRouterfleetctlCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRoutersDeleteAllRequiresConfirmation(t *testing.T) {
	_, err := execute("routers", "delete-all")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--yes")
}

func TestSettingsSetCredentialsRequiresBoth(t *testing.T) {
	_, err := execute("settings", "set-credentials", "--username", "admin")
	require.Error(t, err)
}

func TestSettingsSetBatchWaitRejectsNegative(t *testing.T) {
	_, err := execute("settings", "set-batch-wait", "--minutes", "-1")
	require.Error(t, err)
}

func TestScanRejectsInvalidRouterID(t *testing.T) {
	_, err := execute("scan", "--router", "not-a-uuid")
	require.Error(t, err)
}

func TestRolloutStartRejectsInvalidRouterID(t *testing.T) {
	_, err := execute("rollout", "start", "--router", "not-a-uuid")
	require.Error(t, err)
}

func TestFirmwareSetRequiresTwoArgs(t *testing.T) {
	_, err := execute("firmware-versions", "set", "RUT9")
	require.Error(t, err)
}

func TestCommandTreeHasExpectedSubcommands(t *testing.T) {
	cmd := NewRouterfleetctlCommand()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"routers", "scan", "settings", "firmware-versions", "rollout", "history"} {
		require.True(t, names[want], "expected subcommand %q", want)
	}
}
