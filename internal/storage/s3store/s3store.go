// Package s3store stores encrypted records as objects in an S3-compatible bucket
// (AWS S3, MinIO). Layout under the configured prefix:
//
//	records/<owner>/<record id>   raw blob, created-at in object metadata
//	params/<owner>.json           vault parameters
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/google/uuid"
)

const createdAtMeta = "created-at"

// API is the part of *s3.Client the adapter uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config selects the bucket and how to reach it. Empty credentials fall
// back to the default AWS credential chain.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Store implements storage.Store over S3.
type Store struct {
	api    API
	bucket string
	prefix string
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", common.ErrInvalidInput)
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewWithAPI(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, bucket, prefix string) *Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{api: api, bucket: bucket, prefix: prefix, now: time.Now}
}

func (s *Store) recordsPrefix(ownerID string) string {
	return s.prefix + "records/" + url.PathEscape(ownerID) + "/"
}

func (s *Store) recordKey(ownerID, recordID string) string {
	return s.recordsPrefix(ownerID) + url.PathEscape(recordID)
}

func (s *Store) paramsKey(ownerID string) string {
	return s.prefix + "params/" + url.PathEscape(ownerID) + ".json"
}

func (s *Store) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	id := uuid.NewString()
	if err := s.put(ctx, s.recordKey(ownerID, id), blob, s.now()); err != nil {
		return "", fmt.Errorf("failed to put record: %w", err)
	}
	return id, nil
}

func (s *Store) put(ctx context.Context, key string, blob []byte, created time.Time) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob),
		ContentLength: aws.Int64(int64(len(blob))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      map[string]string{createdAtMeta: created.UTC().Format(time.RFC3339Nano)},
	})
	return err
}

func (s *Store) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	prefix := s.recordsPrefix(ownerID)
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var result []storage.Record
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			id, err := url.PathUnescape(strings.TrimPrefix(key, prefix))
			if err != nil {
				continue
			}
			rec, err := s.get(ctx, key)
			if isNotFound(err) {
				// Deleted between list and get.
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to get record %s: %w", id, err)
			}
			rec.ID = id
			rec.OwnerID = ownerID
			result = append(result, rec)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) get(ctx context.Context, key string) (storage.Record, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.Record{}, err
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return storage.Record{}, err
	}

	updated := aws.ToTime(out.LastModified)
	return storage.Record{
		Blob:      blob,
		CreatedAt: createdAt(out.Metadata, updated),
		UpdatedAt: updated,
	}, nil
}

func createdAt(meta map[string]string, fallback time.Time) time.Time {
	if v, ok := meta[createdAtMeta]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return fallback
}

func (s *Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, common.ErrorNotFound
	}
	return out, err
}

func (s *Store) Update(ctx context.Context, ownerID, recordID string, blob []byte) error {
	key := s.recordKey(ownerID, recordID)
	head, err := s.head(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to stat record: %w", err)
	}

	created := createdAt(head.Metadata, s.now())
	if err := s.put(ctx, key, blob, created); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ownerID, recordID string) error {
	key := s.recordKey(ownerID, recordID)
	if _, err := s.head(ctx, key); err != nil {
		return fmt.Errorf("failed to stat record: %w", err)
	}

	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// paramsDoc is the JSON form of storage.Params; byte slices are base64.
type paramsDoc struct {
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
	Cipher     string `json:"cipher"`
	Canary     []byte `json:"canary,omitempty"`
}

func (s *Store) LoadParams(ctx context.Context, ownerID string) (*storage.Params, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.paramsKey(ownerID)),
	})
	if isNotFound(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault params: %w", err)
	}
	defer out.Body.Close()

	var doc paramsDoc
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode vault params: %w", err)
	}
	return &storage.Params{Salt: doc.Salt, Iterations: doc.Iterations, Cipher: doc.Cipher, Canary: doc.Canary}, nil
}

func (s *Store) SaveParams(ctx context.Context, ownerID string, p *storage.Params) error {
	body, err := json.Marshal(paramsDoc{Salt: p.Salt, Iterations: p.Iterations, Cipher: p.Cipher, Canary: p.Canary})
	if err != nil {
		return fmt.Errorf("failed to encode vault params: %w", err)
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.paramsKey(ownerID)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put vault params: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
