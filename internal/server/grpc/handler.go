package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	creds, err := api.CredentialsFromStruct(req)
	if err != nil {
		return nil, api.ToStatus(err)
	}

	user, err := s.users.Register(ctx, creds.Username, creds.Password)
	if err != nil {
		s.logger.Info(ctx, "Registration failed", "username", creds.Username, "error", err)
		return nil, api.ToStatus(err)
	}

	s.logger.Info(ctx, "Registered", "username", user.UserName, "owner", user.ID)
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	creds, err := api.CredentialsFromStruct(req)
	if err != nil {
		return nil, api.ToStatus(err)
	}

	tokens, err := s.users.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, api.ToStatus(err)
	}

	return api.TokensToStruct(api.Tokens{
		OwnerID:      tokens.OwnerID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}), nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	tokens, err := s.users.RefreshToken(ctx, req.GetValue())
	if err != nil {
		return nil, api.ToStatus(err)
	}

	return api.TokensToStruct(api.Tokens{
		OwnerID:      tokens.OwnerID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}), nil
}

func (s *GRPCServer) GetParams(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.records.GetParams(ctx, owner)
	if err != nil {
		return nil, s.internal(ctx, "get params", err)
	}
	return api.ParamsToStruct(p), nil
}

func (s *GRPCServer) PutParams(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := api.ParamsFromStruct(req)
	if err != nil {
		return nil, api.ToStatus(err)
	}
	if err := s.records.PutParams(ctx, owner, p); err != nil {
		return nil, s.internal(ctx, "put params", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Insert(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	id, err := s.records.Insert(ctx, owner, req.GetValue())
	if err != nil {
		return nil, s.internal(ctx, "insert", err)
	}
	return wrapperspb.String(id), nil
}

func (s *GRPCServer) FetchAll(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return err
	}

	recs, err := s.records.FetchAll(ctx, owner)
	if err != nil {
		return s.internal(ctx, "fetch all", err)
	}
	for _, r := range recs {
		if err := stream.Send(api.RecordToStruct(r)); err != nil {
			return err
		}
	}
	return nil
}

func (s *GRPCServer) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	id, blob, err := api.UpdateFromStruct(req)
	if err != nil {
		return nil, api.ToStatus(err)
	}
	if err := s.records.Update(ctx, owner, id, blob); err != nil {
		return nil, s.internal(ctx, "update", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.records.Delete(ctx, owner, req.GetValue()); err != nil {
		return nil, s.internal(ctx, "delete", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) ReplaceBlobs(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	owner, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := api.BlobsFromStruct(req)
	if err != nil {
		return nil, api.ToStatus(err)
	}
	if err := s.records.ReplaceBlobs(ctx, owner, blobs); err != nil {
		return nil, s.internal(ctx, "replace blobs", err)
	}
	return &emptypb.Empty{}, nil
}

// internal logs unexpected failures before mapping err to a status.
func (s *GRPCServer) internal(ctx context.Context, op string, err error) error {
	st := api.ToStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, "request failed", "op", op, "error", err)
	}
	return st
}
