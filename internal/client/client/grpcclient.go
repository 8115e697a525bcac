// Package client talks to the relay's admin gRPC service.
package client

import (
	"context"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	gs "github.com/dmitrijs2005/anonchat/internal/server/grpc"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *gs.AdminClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, c.accessToken), method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a connection to endpointURL that presents
// accessToken on every call. No network traffic happens until the first call.
func NewGRPCClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}

	c.conn = conn
	c.client = gs.NewAdminClient(conn)
	return c, nil
}

func (c *GRPCClient) GetStats(ctx context.Context) (*models.Stats, error) {
	out, err := c.client.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return gs.StatsFromStruct(out), nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
