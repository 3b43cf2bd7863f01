package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/bridge"
)

type bridgeFlags struct {
	listen       string
	debuggerAddr string
}

func NewBridgeCommand(log logr.Logger) *cobra.Command {
	var flags bridgeFlags
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Runs the relay that pairs VMs attached over gRPC with debuggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context(), log.WithName("bridge"), flags)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.listen, "listen", "127.0.0.1:5037", "Address VMs attach to.")
	fs.StringVar(&flags.debuggerAddr, "debugger-addr", "127.0.0.1:8700", "Address debuggers connect to.")
	return cmd
}

func runBridge(ctx context.Context, log logr.Logger, f bridgeFlags) error {
	vmLis, err := net.Listen("tcp", f.listen)
	if err != nil {
		return fmt.Errorf("failed to listen for VMs on %s: %w", f.listen, err)
	}
	debuggerLis, err := net.Listen("tcp", f.debuggerAddr)
	if err != nil {
		_ = vmLis.Close()
		return fmt.Errorf("failed to listen for debuggers on %s: %w", f.debuggerAddr, err)
	}

	relay := bridge.NewServer(log)
	srv := grpc.NewServer()
	bridge.Register(srv, relay)
	log.Info("bridge running", "vms", vmLis.Addr().String(), "debuggers", debuggerLis.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(vmLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return relay.ServeDebuggers(ctx, debuggerLis)
	})
	g.Go(func() error {
		<-ctx.Done()
		relay.Close()
		srv.Stop()
		return nil
	})
	return g.Wait()
}
