package client

import (
	"context"
	"fmt"

	"github.com/terminus-io/storage-agent/pkg/api"
	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client talks to the volume RPC service of one storage agent.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to addr without transport security; callers are
// not authenticated.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Hello(ctx context.Context, callerID string) (string, error) {
	resp := new(api.HelloResponse)
	if err := c.conn.Invoke(ctx, api.HelloMethod, &api.HelloRequest{CallerID: callerID}, resp); err != nil {
		return "", fromStatus(err, "")
	}
	return resp.Message, nil
}

func (c *Client) Create(ctx context.Context, volumeID, sizeLimit string) (string, error) {
	resp := new(api.CreateResponse)
	req := &api.CreateRequest{VolumeID: volumeID, SizeLimit: sizeLimit}
	if err := c.conn.Invoke(ctx, api.CreateMethod, req, resp); err != nil {
		return "", fromStatus(err, volumeID)
	}
	return resp.Path, nil
}

func (c *Client) Remove(ctx context.Context, volumeID string) error {
	if err := c.conn.Invoke(ctx, api.RemoveMethod, &api.RemoveRequest{VolumeID: volumeID}, new(api.RemoveResponse)); err != nil {
		return fromStatus(err, volumeID)
	}
	return nil
}

func (c *Client) Resolve(ctx context.Context, volumeID string) (string, error) {
	resp := new(api.ResolveResponse)
	if err := c.conn.Invoke(ctx, api.ResolveMethod, &api.ResolveRequest{VolumeID: volumeID}, resp); err != nil {
		return "", fromStatus(err, volumeID)
	}
	return resp.Path, nil
}

// fromStatus turns a status from the agent back into the matching error
// kind so callers can use the errdefs predicates on both sides.
func fromStatus(err error, volumeID string) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return &errdefs.InvalidArgumentError{Argument: "request", Reason: st.Message()}
	case codes.NotFound:
		return &errdefs.NotFoundError{VolumeID: volumeID}
	case codes.Aborted:
		return &errdefs.ExecutionError{Command: "remote", Err: err}
	case codes.FailedPrecondition:
		return &errdefs.ConfigurationError{Field: "remote", Reason: st.Message()}
	case codes.DataLoss:
		return &errdefs.StateCorruptionError{Path: "remote", Reason: st.Message()}
	}
	return err
}
