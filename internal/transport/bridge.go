package transport

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/DataExMachina-dev/side-eye-jdwp/internal/bridge"
)

// BridgeDialer attaches to a bridge relay over gRPC and waits there for a
// debugger. The relay may hold the stream indefinitely before a debugger
// arrives, so the handshake has no timeout.
type BridgeDialer struct {
	target     string
	log        logr.Logger
	newBackOff func() backoff.BackOff
	pid        int
	vmID       string

	cc     *grpc.ClientConn
	client *bridge.Client
}

var _ Acceptor = (*BridgeDialer)(nil)

// DialBridge prepares a connection to the relay at target. No network traffic
// happens until Accept.
func DialBridge(
	target string,
	log logr.Logger,
	newBackOff func() backoff.BackOff,
	pid int,
	vmID string,
	opts ...grpc.DialOption,
) (*BridgeDialer, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	cc, err := grpc.Dial(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge client for %s: %w", target, err)
	}
	return &BridgeDialer{
		target:     target,
		log:        log,
		newBackOff: newBackOff,
		pid:        pid,
		vmID:       vmID,
		cc:         cc,
		client:     bridge.NewClient(cc),
	}, nil
}

// Accept implements Acceptor.
func (b *BridgeDialer) Accept(ctx context.Context) (Conn, error) {
	return backoff.RetryNotifyWithData(
		func() (Conn, error) {
			streamCtx, cancel := context.WithCancel(ctx)
			streamCtx = metadata.AppendToOutgoingContext(streamCtx,
				bridge.MetadataPID, strconv.Itoa(b.pid),
				bridge.MetadataVMID, b.vmID,
			)
			stream, err := b.client.Attach(streamCtx)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("failed to attach to bridge %s: %w", b.target, err)
			}
			rwc := bridge.NewStreamConn(stream, func() error {
				err := stream.CloseSend()
				cancel()
				return err
			})
			if err := withTimeout(rwc, 0, serverHandshake); err != nil {
				_ = rwc.Close()
				return nil, err
			}
			return NewStreamConn(rwc, b.target), nil
		},
		backoff.WithContext(b.newBackOff(), ctx),
		func(err error, wait time.Duration) {
			b.log.V(1).Info("bridge attach failed, retrying", "err", err, "wait", wait)
		},
	)
}

func (b *BridgeDialer) Close() error {
	return b.cc.Close()
}

func (b *BridgeDialer) Addr() string {
	return b.target
}
