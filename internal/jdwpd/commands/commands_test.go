package commands

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/logger"
	"github.com/DataExMachina-dev/side-eye-jdwp/jdwp"
)

func TestStartupParamsFromFlags(t *testing.T) {
	t.Parallel()

	p, err := vmFlags{transport: "dt_socket", server: true, suspend: true, address: "localhost:8700"}.startupParams()
	require.NoError(t, err)
	require.Equal(t, jdwp.StartupParams{
		Transport: jdwp.TransportSocket, Server: true, Suspend: true, Host: "localhost", Port: 8700,
	}, p)

	// The option string wins over the individual flags.
	p, err = vmFlags{
		options:   "transport=dt_android_adb,address=:5037",
		transport: "dt_socket", server: true, address: "localhost:8700",
	}.startupParams()
	require.NoError(t, err)
	require.Equal(t, jdwp.StartupParams{Transport: jdwp.TransportBridge, Port: 5037}, p)

	_, err = vmFlags{transport: "dt_shmem", address: "localhost:1"}.startupParams()
	require.ErrorIs(t, err, jdwp.ErrInvalidTransport)
	_, err = vmFlags{transport: "dt_socket", address: "8700"}.startupParams()
	require.ErrorContains(t, err, "invalid address")
	_, err = vmFlags{transport: "dt_socket", address: "h:99999"}.startupParams()
	require.ErrorContains(t, err, "invalid port")
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	log := logger.NewWithWriter("test", &bytes.Buffer{})
	root := NewRootCommand(log)
	for _, name := range []string{"vm", "bridge"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
	require.NotNil(t, root.PersistentFlags().Lookup("verbosity"))

	vm, _, err := root.Find([]string{"vm"})
	require.NoError(t, err)
	for _, f := range []string{"options", "transport", "server", "suspend", "address", "status-addr", "threads"} {
		require.NotNil(t, vm.Flags().Lookup(f), f)
	}
}

func TestMakePanicError(t *testing.T) {
	t.Parallel()

	require.NoError(t, MakePanicError(nil, logr.Discard()))
	require.EqualError(t, MakePanicError("boom", logr.Discard()), "boom")
	sentinel := errors.New("sentinel")
	require.ErrorIs(t, MakePanicError(sentinel, logr.Discard()), sentinel)
}
