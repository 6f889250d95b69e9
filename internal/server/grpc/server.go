// Package grpc exposes the record store and account operations over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// UserService is the account side of the server.
type UserService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// RecordService stores opaque records and vault parameters per owner.
type RecordService interface {
	Insert(ctx context.Context, ownerID string, blob []byte) (string, error)
	FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error)
	Update(ctx context.Context, ownerID, recordID string, blob []byte) error
	Delete(ctx context.Context, ownerID, recordID string) error
	ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error
	GetParams(ctx context.Context, ownerID string) (*storage.Params, error)
	PutParams(ctx context.Context, ownerID string, p *storage.Params) error
}

type GRPCServer struct {
	address   string
	users     UserService
	records   RecordService
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
}

var _ api.RecordStoreServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, us UserService, rs RecordService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		records:   rs,
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
	}
}

// newServer builds the grpc.Server with interceptors, the record store
// service and the standard health service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	)

	api.RegisterRecordStoreServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
