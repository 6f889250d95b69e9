package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const ownerIDKey ctxKey = "ownerID"

const healthServicePrefix = "/grpc.health.v1.Health/"

func ownerFromContext(ctx context.Context) (string, error) {
	owner, ok := ctx.Value(ownerIDKey).(string)
	if !ok || owner == "" {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return owner, nil
}

func firstMetadata(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// authenticate puts the token subject into ctx for protected methods.
// A caller that also names an owner must name the token subject.
func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	if api.PublicMethods[method] || strings.HasPrefix(method, healthServicePrefix) {
		return ctx, nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	accessToken := firstMetadata(md, common.AccessTokenHeaderName)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	ownerID, err := auth.GetOwnerIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, api.ToStatus(err)
	}

	if claimed := firstMetadata(md, common.OwnerIDHeaderName); claimed != "" && claimed != ownerID {
		s.logger.Warn(ctx, "owner id does not match token", "method", method)
		return nil, status.Error(codes.PermissionDenied, "owner mismatch")
	}

	return context.WithValue(ctx, ownerIDKey, ownerID), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authenticatedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
