package remote

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Store implements storage.Store over the gophvault server. Every call
// needs a prior Client.Login for the owner.
type Store struct {
	c *Client
}

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.BlobReplacer = (*Store)(nil)
)

func (s *Store) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	var id string
	err := s.c.call(ctx, ownerID, func(ctx context.Context) error {
		resp, err := s.c.api.Insert(ctx, wrapperspb.Bytes(blob))
		if err != nil {
			return err
		}
		id = resp.GetValue()
		return nil
	})
	return id, err
}

func (s *Store) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	var out []storage.Record
	err := s.c.call(ctx, ownerID, func(ctx context.Context) error {
		out = nil
		stream, err := s.c.api.FetchAll(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		for {
			msg, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			rec, err := api.RecordFromStruct(ownerID, msg)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, ownerID, recordID string, blob []byte) error {
	return s.c.call(ctx, ownerID, func(ctx context.Context) error {
		_, err := s.c.api.Update(ctx, api.UpdateToStruct(recordID, blob))
		return err
	})
}

func (s *Store) Delete(ctx context.Context, ownerID, recordID string) error {
	return s.c.call(ctx, ownerID, func(ctx context.Context) error {
		_, err := s.c.api.Delete(ctx, wrapperspb.String(recordID))
		return err
	})
}

// ReplaceBlobs asks the server to rewrite the records in one transaction.
func (s *Store) ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error {
	return s.c.call(ctx, ownerID, func(ctx context.Context) error {
		_, err := s.c.api.ReplaceBlobs(ctx, api.BlobsToStruct(blobs))
		return err
	})
}

func (s *Store) LoadParams(ctx context.Context, ownerID string) (*storage.Params, error) {
	var p *storage.Params
	err := s.c.call(ctx, ownerID, func(ctx context.Context) error {
		resp, err := s.c.api.GetParams(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		p, err = api.ParamsFromStruct(resp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) SaveParams(ctx context.Context, ownerID string, p *storage.Params) error {
	return s.c.call(ctx, ownerID, func(ctx context.Context) error {
		_, err := s.c.api.PutParams(ctx, api.ParamsToStruct(p))
		return err
	})
}
