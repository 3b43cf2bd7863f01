package bridge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Metadata keys sent by a VM when it attaches.
const (
	MetadataPID  = "jdwp-pid"
	MetadataVMID = "jdwp-vm-id"
)

const attachMethod = "/jdwp.bridge.v1.Bridge/Attach"

// AttachServer is the server side of an Attach stream.
type AttachServer interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ServerStream
}

// AttachClient is the client side of an Attach stream.
type AttachClient interface {
	Send(*wrapperspb.BytesValue) error
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

// Service is implemented by the relay.
type Service interface {
	Attach(AttachServer) error
}

// ServiceDesc describes the jdwp.bridge.v1.Bridge service in bridge.proto.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "jdwp.bridge.v1.Bridge",
	HandlerType: (*Service)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "bridge.proto",
}

// Register adds the relay to a gRPC server.
func Register(s grpc.ServiceRegistrar, svc Service) {
	s.RegisterService(&ServiceDesc, svc)
}

func attachHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(Service).Attach(&attachServer{stream})
}

type attachServer struct {
	grpc.ServerStream
}

func (x *attachServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

func (x *attachServer) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Client opens Attach streams.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Attach opens a stream to the relay.
func (c *Client) Attach(ctx context.Context, opts ...grpc.CallOption) (AttachClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], attachMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &attachClient{stream}, nil
}

type attachClient struct {
	grpc.ClientStream
}

func (x *attachClient) Send(m *wrapperspb.BytesValue) error {
	return x.ClientStream.SendMsg(m)
}

func (x *attachClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
