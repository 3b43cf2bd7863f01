package jdwp

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"google.golang.org/grpc"
)

// Option configures an Engine.
type Option interface {
	apply(*config)
}

type config struct {
	log              logr.Logger
	vm               VM
	commandHandler   CommandHandler
	ddmHandler       DdmHandler
	appName          string
	version          VersionInfo
	newBackOff       func() backoff.BackOff
	handshakeTimeout time.Duration
	suspendWarnAfter time.Duration
	bridgeDialOpts   []grpc.DialOption
	now              func() time.Time
}

// VersionInfo is returned by VirtualMachine.Version.
type VersionInfo struct {
	Description string
	JDWPMajor   int32
	JDWPMinor   int32
	VMVersion   string
	VMName      string
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultSuspendWarnAfter = 30 * time.Second
)

func makeDefaultConfig() config {
	return config{
		log:     logr.Discard(),
		vm:      NopVM{},
		appName: filepath.Base(os.Args[0]),
		version: VersionInfo{
			Description: "side-eye-jdwp",
			JDWPMajor:   1,
			JDWPMinor:   6,
			VMVersion:   "1.6.0",
			VMName:      "side-eye-jdwp",
		},
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(100*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
				backoff.WithMaxElapsedTime(30*time.Second),
			)
		},
		handshakeTimeout: defaultHandshakeTimeout,
		suspendWarnAfter: defaultSuspendWarnAfter,
		now:              time.Now,
	}
}

type optionFunc func(cfg *config)

func (f optionFunc) apply(cfg *config) {
	f(cfg)
}

// WithLogger sets the logger. Defaults to discarding everything.
func WithLogger(log logr.Logger) Option {
	return optionFunc(func(cfg *config) {
		cfg.log = log
	})
}

// WithVM connects the engine to the runtime's thread suspension and type
// lookup. Without it, events that request suspension are still reported but
// no thread actually stops.
func WithVM(vm VM) Option {
	return optionFunc(func(cfg *config) {
		cfg.vm = vm
	})
}

// WithCommandHandler installs the handler for debugger commands the engine
// does not process itself.
func WithCommandHandler(h CommandHandler) Option {
	return optionFunc(func(cfg *config) {
		cfg.commandHandler = h
	})
}

// WithDdmHandler installs the handler for inbound DDM chunks other than HELO.
func WithDdmHandler(h DdmHandler) Option {
	return optionFunc(func(cfg *config) {
		cfg.ddmHandler = h
	})
}

// WithAppName sets the application name reported in the HELO chunk. Defaults
// to the executable name.
func WithAppName(name string) Option {
	return optionFunc(func(cfg *config) {
		cfg.appName = name
	})
}

// WithVersion sets the reply to VirtualMachine.Version.
func WithVersion(v VersionInfo) Option {
	return optionFunc(func(cfg *config) {
		cfg.version = v
	})
}

// WithConnectBackOff sets the retry policy used when connecting out to a
// debugger (server=n). newBackOff is called once per connection attempt
// sequence.
func WithConnectBackOff(newBackOff func() backoff.BackOff) Option {
	return optionFunc(func(cfg *config) {
		cfg.newBackOff = newBackOff
	})
}

// WithHandshakeTimeout bounds the JDWP-Handshake exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.handshakeTimeout = d
	})
}

// WithSuspendWaitWarning logs a warning when the protocol goroutine has been
// waiting longer than d for an event thread to suspend. The wait itself is
// never abandoned. Zero disables the warning.
func WithSuspendWaitWarning(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.suspendWarnAfter = d
	})
}

// WithBridgeDialOptions adds gRPC dial options used by the bridge transport.
func WithBridgeDialOptions(opts ...grpc.DialOption) Option {
	return optionFunc(func(cfg *config) {
		cfg.bridgeDialOpts = append(cfg.bridgeDialOpts, opts...)
	})
}
