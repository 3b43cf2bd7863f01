package jdwp

import (
	"context"
	"fmt"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/transport"
	"github.com/DataExMachina-dev/side-eye-jdwp/internal/vmident"
)

// Startup validates params, binds or prepares the transport, and starts the
// protocol goroutine. With params.Suspend set it blocks until a debugger has
// attached, ctx is done, or the engine fails.
//
// On error nothing is left running.
func Startup(ctx context.Context, params StartupParams, opts ...Option) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	cfg := makeDefaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	ident, err := vmident.Get()
	if err != nil {
		cfg.log.Error(err, "failed to fingerprint executable")
	}
	acceptor, err := newAcceptor(params, cfg, ident)
	if err != nil {
		return nil, err
	}
	return startEngine(ctx, cfg, params, ident, acceptor)
}

func startEngine(
	ctx context.Context,
	cfg config,
	params StartupParams,
	ident vmident.Identity,
	acceptor transport.Acceptor,
) (*Engine, error) {
	e := newEngine(cfg, params, ident, acceptor)
	e.log.Info("jdwp engine started",
		"transport", params.Transport.String(), "server", params.Server,
		"address", acceptor.Addr(), "suspend", params.Suspend, "vm", ident.Fingerprint)
	e.start()
	if !params.Suspend {
		return e, nil
	}

	e.log.Info("waiting for debugger to attach", "address", acceptor.Addr())
	select {
	case <-e.attached:
		return e, nil
	case <-ctx.Done():
		e.Shutdown()
		return nil, ctx.Err()
	case <-e.ctx.Done():
		// run has returned and released everything.
		err := e.g.Wait()
		if err == nil {
			err = ErrClosed
		}
		return nil, fmt.Errorf("engine stopped before a debugger attached: %w", err)
	}
}

func newAcceptor(params StartupParams, cfg config, ident vmident.Identity) (transport.Acceptor, error) {
	switch params.Transport {
	case TransportSocket:
		if params.Server {
			l, err := transport.ListenSocket(params.Address(), cfg.log, cfg.handshakeTimeout)
			if err != nil {
				return nil, err
			}
			return l, nil
		}
		return transport.NewDialer(params.Address(), cfg.log, cfg.newBackOff, cfg.handshakeTimeout), nil
	case TransportBridge:
		b, err := transport.DialBridge(
			params.Address(), cfg.log, cfg.newBackOff, ident.Pid, ident.String(), cfg.bridgeDialOpts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case TransportUnknown:
		return nil, fmt.Errorf("%w: transport not specified", ErrInvalidTransport)
	default:
		panic(fmt.Sprintf("unexpected transport: %d", int(params.Transport)))
	}
}
