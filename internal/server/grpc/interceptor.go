package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/anonchat/internal/common"
	"github.com/dmitrijs2005/anonchat/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const adminMethodPrefix = "/" + AdminServiceName + "/"

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	// health checks stay open
	if !strings.HasPrefix(info.FullMethod, adminMethodPrefix) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	err := auth.CheckAdminToken(accessToken, s.jwtSecret)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return nil, status.Error(codes.Unauthenticated, "token expired")
	case errors.Is(err, common.ErrorUnauthorized):
		s.logger.Warn(ctx, "non-admin token rejected", "method", info.FullMethod)
		return nil, status.Error(codes.PermissionDenied, "admin only")
	case err != nil:
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(ctx, req)
}
