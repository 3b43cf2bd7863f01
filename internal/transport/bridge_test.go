package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/bridge"
)

func TestBridgeDialer(t *testing.T) {
	t.Parallel()

	lis := bufconn.Listen(1 << 16)
	relay := bridge.NewServer(logr.Discard())
	srv := grpc.NewServer()
	bridge.Register(srv, relay)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	d, err := DialBridge("passthrough:///bufnet", logr.Discard(),
		func() backoff.BackOff { return backoff.NewConstantBackOff(10 * time.Millisecond) },
		4321, "vm-1",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		conn Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := d.Accept(ctx)
		accepted <- result{c, err}
	}()

	vm, err := relay.Accept(ctx)
	require.NoError(t, err)
	require.Equal(t, 4321, vm.PID)
	require.Equal(t, "vm-1", vm.VMID)
	defer vm.Conn.Close()

	require.NoError(t, clientHandshake(vm.Conn))
	r := <-accepted
	require.NoError(t, r.err)
	defer r.conn.Close()

	_, err = vm.Conn.Write(testPacket(3, 0xAA))
	require.NoError(t, err)
	pkt, err := r.conn.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, testPacket(3, 0xAA), pkt)

	reply := testPacket(4)
	go func() { _ = r.conn.WriteBuffers(reply) }()
	got := make([]byte, len(reply))
	_, err = io.ReadFull(vm.Conn, got)
	require.NoError(t, err)
	require.Equal(t, reply, got)
}
