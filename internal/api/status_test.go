package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("repo: %w", common.ErrorNotFound), codes.NotFound},
		{common.ErrorAlreadyExists, codes.AlreadyExists},
		{common.ErrInvalidInput, codes.InvalidArgument},
		{common.ErrorUnauthorized, codes.Unauthenticated},
		{common.ErrInvalidToken, codes.Unauthenticated},
		{common.ErrTokenExpired, codes.Unauthenticated},
		{common.ErrRefreshTokenExpired, codes.Unauthenticated},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{errors.New("pq: relation does not exist"), codes.Internal},
		{status.Error(codes.PermissionDenied, "x"), codes.PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(ToStatus(tt.err)))
		})
	}
	assert.NoError(t, ToStatus(nil))
}

func TestToStatus_HidesInternalDetails(t *testing.T) {
	st, _ := status.FromError(ToStatus(errors.New("password=hunter2 connection refused")))
	assert.NotContains(t, st.Message(), "hunter2")
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{status.Error(codes.NotFound, "gone"), common.ErrorNotFound},
		{status.Error(codes.AlreadyExists, "dup"), common.ErrorAlreadyExists},
		{status.Error(codes.InvalidArgument, "bad"), common.ErrInvalidInput},
		{status.Error(codes.Unauthenticated, "who"), common.ErrorUnauthorized},
		{status.Error(codes.PermissionDenied, "no"), common.ErrorUnauthorized},
		{status.Error(codes.Unavailable, "down"), common.ErrStorageUnavailable},
		{status.Error(codes.DeadlineExceeded, "slow"), common.ErrStorageUnavailable},
		{status.Error(codes.Internal, "boom"), common.ErrorInternal},
		{errors.New("plain"), common.ErrStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.ErrorIs(t, FromStatus(tt.err), tt.want)
		})
	}
	assert.NoError(t, FromStatus(nil))
}
