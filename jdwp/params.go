package jdwp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidTransport is returned by Startup for an unknown or malformed
// transport configuration.
var ErrInvalidTransport = errors.New("invalid jdwp transport")

// TransportType says how the engine talks to the debugger.
type TransportType int

const (
	TransportUnknown TransportType = iota
	// TransportSocket is a TCP stream (transport=dt_socket).
	TransportSocket
	// TransportBridge goes through a device-debug bridge daemon
	// (transport=dt_android_adb).
	TransportBridge
)

func (t TransportType) String() string {
	switch t {
	case TransportUnknown:
		return "unknown"
	case TransportSocket:
		return "dt_socket"
	case TransportBridge:
		return "dt_android_adb"
	default:
		panic(fmt.Sprintf("unexpected transport: %d", int(t)))
	}
}

// ParseTransportType maps an agent option value to a TransportType.
func ParseTransportType(s string) (TransportType, error) {
	switch s {
	case "dt_socket":
		return TransportSocket, nil
	case "dt_android_adb", "dt_bridge":
		return TransportBridge, nil
	default:
		return TransportUnknown, fmt.Errorf("%w: %q", ErrInvalidTransport, s)
	}
}

// StartupParams configures Startup. It is read once and never modified.
type StartupParams struct {
	Transport TransportType
	// Server listens for the debugger when true, and connects to it when
	// false. The bridge transport always connects to the bridge daemon.
	Server bool
	// Suspend makes Startup block until a debugger has attached.
	Suspend bool
	Host    string
	Port    uint16
}

// Address returns the host:port the transport binds or connects to.
func (p StartupParams) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

func (p StartupParams) validate() error {
	switch p.Transport {
	case TransportSocket:
		if !p.Server && p.Host == "" {
			return fmt.Errorf("%w: client mode requires a host", ErrInvalidTransport)
		}
		if !p.Server && p.Port == 0 {
			return fmt.Errorf("%w: client mode requires a port", ErrInvalidTransport)
		}
	case TransportBridge:
		if p.Port == 0 {
			return fmt.Errorf("%w: bridge transport requires a port", ErrInvalidTransport)
		}
	case TransportUnknown:
		return fmt.Errorf("%w: transport not specified", ErrInvalidTransport)
	default:
		panic(fmt.Sprintf("unexpected transport: %d", int(p.Transport)))
	}
	return nil
}

// ParseOptions parses an agent option string such as
// "transport=dt_socket,server=y,suspend=n,address=localhost:8000".
//
// An address without a host ("8000") leaves Host empty, which binds all
// interfaces in server mode.
func ParseOptions(options string) (StartupParams, error) {
	var p StartupParams
	for _, kv := range strings.Split(options, ",") {
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return StartupParams{}, fmt.Errorf("malformed option %q", kv)
		}
		var err error
		switch k {
		case "transport":
			p.Transport, err = ParseTransportType(v)
		case "server":
			p.Server, err = parseYesNo(k, v)
		case "suspend":
			p.Suspend, err = parseYesNo(k, v)
		case "address":
			p.Host, p.Port, err = parseAddress(v)
		default:
			err = fmt.Errorf("unknown option %q", k)
		}
		if err != nil {
			return StartupParams{}, err
		}
	}
	if p.Transport == TransportUnknown {
		return StartupParams{}, fmt.Errorf("%w: transport not specified", ErrInvalidTransport)
	}
	return p, nil
}

func parseYesNo(k, v string) (bool, error) {
	switch v {
	case "y":
		return true, nil
	case "n":
		return false, nil
	default:
		return false, fmt.Errorf("option %s must be y or n, got %q", k, v)
	}
}

func parseAddress(v string) (string, uint16, error) {
	host, port := "", v
	if i := strings.LastIndexByte(v, ':'); i >= 0 {
		host, port = v[:i], v[i+1:]
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in address %q: %w", v, err)
	}
	return host, uint16(n), nil
}
