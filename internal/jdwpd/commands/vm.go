package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/simvm"
	"github.com/DataExMachina-dev/side-eye-jdwp/jdwp"
)

// ENV_JDWP_OPTIONS holds an agent option string, e.g.
// "transport=dt_socket,server=y,suspend=n,address=8700". It is used when
// --options is not given.
const ENV_JDWP_OPTIONS = "JDWP_OPTIONS"

type vmFlags struct {
	options          string
	transport        string
	server           bool
	suspend          bool
	address          string
	statusAddr       string
	appName          string
	handshakeTimeout time.Duration
	suspendWarning   time.Duration

	sim simvm.Config
}

func NewVMCommand(log logr.Logger) *cobra.Command {
	var flags vmFlags
	cmd := &cobra.Command{
		Use:   "vm",
		Short: "Runs a simulated VM that a debugger can attach to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("options") {
				flags.options = os.Getenv(ENV_JDWP_OPTIONS)
			}
			return runVM(cmd.Context(), log.WithName("vm"), flags)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.options, "options", "",
		"Agent option string (transport=...,server=y|n,suspend=y|n,address=host:port). Overrides the individual flags. Defaults to $"+ENV_JDWP_OPTIONS+".")
	fs.StringVar(&flags.transport, "transport", "dt_socket", "Transport: dt_socket or dt_android_adb.")
	fs.BoolVar(&flags.server, "server", true, "Listen for the debugger rather than connecting to it.")
	fs.BoolVar(&flags.suspend, "suspend", false, "Wait for a debugger before running, and suspend on VM start.")
	fs.StringVar(&flags.address, "address", "127.0.0.1:8700", "Address to listen on, or of the debugger or bridge to connect to.")
	fs.StringVar(&flags.statusAddr, "status-addr", "", "Serve the JDWP status page on this address.")
	fs.StringVar(&flags.appName, "app-name", "simvm", "Application name reported to DDM clients.")
	fs.DurationVar(&flags.handshakeTimeout, "handshake-timeout", 10*time.Second, "Time allowed for the JDWP handshake.")
	fs.DurationVar(&flags.suspendWarning, "suspend-warning", 30*time.Second, "Warn when an event thread takes longer than this to suspend.")
	fs.IntVar(&flags.sim.Threads, "threads", 3, "Number of worker threads.")
	fs.IntVar(&flags.sim.Steps, "steps", 64, "Steps each worker executes before it exits.")
	fs.DurationVar(&flags.sim.Tick, "tick", 250*time.Millisecond, "Duration of one step.")
	fs.IntVar(&flags.sim.ThrowEvery, "throw-every", 10, "Throw an exception every n steps; 0 never throws.")
	return cmd
}

func (f vmFlags) startupParams() (jdwp.StartupParams, error) {
	if f.options != "" {
		return jdwp.ParseOptions(f.options)
	}
	transport, err := jdwp.ParseTransportType(f.transport)
	if err != nil {
		return jdwp.StartupParams{}, err
	}
	host, portStr, err := net.SplitHostPort(f.address)
	if err != nil {
		return jdwp.StartupParams{}, fmt.Errorf("invalid address %q: %w", f.address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return jdwp.StartupParams{}, fmt.Errorf("invalid port in address %q: %w", f.address, err)
	}
	return jdwp.StartupParams{
		Transport: transport,
		Server:    f.server,
		Suspend:   f.suspend,
		Host:      host,
		Port:      uint16(port),
	}, nil
}

func runVM(ctx context.Context, log logr.Logger, f vmFlags) error {
	params, err := f.startupParams()
	if err != nil {
		return err
	}
	f.sim.SuspendOnStart = params.Suspend
	rt := simvm.New(log.WithName("runtime"), f.sim)

	e, err := jdwp.Startup(ctx, params,
		jdwp.WithLogger(log.WithName("jdwp")),
		jdwp.WithVM(rt),
		jdwp.WithCommandHandler(rt),
		jdwp.WithAppName(f.appName),
		jdwp.WithHandshakeTimeout(f.handshakeTimeout),
		jdwp.WithSuspendWaitWarning(f.suspendWarning),
	)
	if err != nil {
		return fmt.Errorf("failed to start jdwp: %w", err)
	}
	defer e.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	if f.statusAddr != "" {
		srv := &http.Server{Addr: f.statusAddr, Handler: jdwp.StatusHandler(e)}
		g.Go(func() error {
			log.Info("serving status page", "addr", f.statusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status page: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var status int32
	g.Go(func() error {
		status = rt.Run(gctx, e)
		// Stop the status page once the VM is gone.
		return errVMExited
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errVMExited) {
		return err
	}
	if status != 0 {
		return fmt.Errorf("vm exited with status %d", status)
	}
	return nil
}

var errVMExited = errors.New("vm exited")
