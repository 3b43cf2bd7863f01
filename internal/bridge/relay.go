// Package bridge relays JDWP streams between VMs and debuggers over gRPC. A VM
// that cannot accept inbound connections dials the relay and opens an Attach
// stream; the relay hands the stream out to the next debugger that connects.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ErrClosed is returned by Accept once the relay is closed.
var ErrClosed = errors.New("bridge relay closed")

// AttachedVM is a VM waiting for a debugger. Writes to Conn reach the VM and
// reads return what the VM sent. Closing Conn ends the Attach stream.
type AttachedVM struct {
	PID  int
	VMID string
	Conn net.Conn
}

// Server is the relay. It implements Service.
type Server struct {
	log    logr.Logger
	offers chan AttachedVM

	closeOnce sync.Once
	done      chan struct{}
}

var _ Service = (*Server)(nil)

func NewServer(log logr.Logger) *Server {
	return &Server{
		log:    log,
		offers: make(chan AttachedVM),
		done:   make(chan struct{}),
	}
}

// Attach implements Service. It blocks until a debugger takes the VM and then
// copies bytes in both directions until either side goes away.
func (s *Server) Attach(stream AttachServer) error {
	ctx := stream.Context()
	vm := AttachedVM{}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataPID); len(v) > 0 {
			vm.PID, _ = strconv.Atoi(v[0])
		}
		if v := md.Get(MetadataVMID); len(v) > 0 {
			vm.VMID = v[0]
		}
	}
	vmEnd, debuggerEnd := net.Pipe()
	defer vmEnd.Close()
	vm.Conn = debuggerEnd

	log := s.log.WithValues("pid", vm.PID, "vmID", vm.VMID)
	log.V(1).Info("vm attached, waiting for debugger")
	select {
	case s.offers <- vm:
	case <-ctx.Done():
		_ = debuggerEnd.Close()
		return ctx.Err()
	case <-s.done:
		_ = debuggerEnd.Close()
		return status.Error(codes.Unavailable, ErrClosed.Error())
	}
	log.V(1).Info("vm taken by debugger")

	sc := NewStreamConn(stream, nil)
	// Recv cannot be interrupted short of returning from the handler, so the
	// stream-to-pipe direction is not waited for.
	go func() {
		_, _ = io.Copy(vmEnd, sc)
		_ = vmEnd.Close()
	}()
	_, err := io.Copy(sc, vmEnd)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		log.Error(err, "relaying to vm")
		return status.Error(codes.Aborted, err.Error())
	}
	return nil
}

// Accept returns the next VM waiting for a debugger.
func (s *Server) Accept(ctx context.Context) (AttachedVM, error) {
	select {
	case vm := <-s.offers:
		return vm, nil
	case <-ctx.Done():
		return AttachedVM{}, ctx.Err()
	case <-s.done:
		return AttachedVM{}, ErrClosed
	}
}

// ServeDebuggers accepts debugger connections on lis and pairs each with the
// next attached VM. It returns when ctx is canceled or lis fails.
func (s *Server) ServeDebuggers(ctx context.Context, lis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return lis.Close()
	})
	g.Go(func() error {
		for {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to accept debugger: %w", err)
			}
			vm, err := s.Accept(ctx)
			if err != nil {
				_ = conn.Close()
				if ctx.Err() != nil || errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
			s.log.Info("debugger paired with vm",
				"debugger", conn.RemoteAddr().String(), "pid", vm.PID, "vmID", vm.VMID)
			g.Go(func() error {
				stop := context.AfterFunc(ctx, func() {
					_ = conn.Close()
					_ = vm.Conn.Close()
				})
				defer stop()
				splice(conn, vm.Conn)
				return nil
			})
		}
	})
	return g.Wait()
}

// Close stops handing out VMs. Streams already paired keep running until
// their ServeDebuggers context ends.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func splice(a, b net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	cp := func(dst, src net.Conn) {
		defer wg.Done()
		_, _ = io.Copy(dst, src)
		_ = dst.Close()
		_ = src.Close()
	}
	go cp(a, b)
	go cp(b, a)
	wg.Wait()
}
