package api

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"google.golang.org/protobuf/types/known/structpb"
)

// Struct field names.
const (
	FieldUsername     = "username"
	FieldPassword     = "password"
	FieldOwnerID      = "owner_id"
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldID           = "id"
	FieldBlob         = "blob"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"
	FieldSalt         = "salt"
	FieldIterations   = "iterations"
	FieldCipher       = "cipher"
	FieldCanary       = "canary"
)

// Credentials is the Register/Login request payload.
type Credentials struct {
	Username string
	Password string
}

// Tokens is the Login/RefreshToken response payload.
type Tokens struct {
	OwnerID      string
	AccessToken  string
	RefreshToken string
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", common.ErrInvalidInput, name)
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", common.ErrInvalidInput, name)
	}
	return sv.StringValue, nil
}

func bytesField(s *structpb.Struct, name string) ([]byte, error) {
	str, err := stringField(s, name)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", common.ErrInvalidInput, name, err)
	}
	return b, nil
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	str, err := stringField(s, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %q: %v", common.ErrInvalidInput, name, err)
	}
	return t, nil
}

func numberField(s *structpb.Struct, name string) (float64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", common.ErrInvalidInput, name)
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: field %q is not a number", common.ErrInvalidInput, name)
	}
	return nv.NumberValue, nil
}

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

// CredentialsToStruct encodes a Register/Login request.
func CredentialsToStruct(c Credentials) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldUsername: structpb.NewStringValue(c.Username),
		FieldPassword: structpb.NewStringValue(c.Password),
	})
}

// CredentialsFromStruct decodes a Register/Login request.
func CredentialsFromStruct(s *structpb.Struct) (Credentials, error) {
	var c Credentials
	var err error
	if c.Username, err = stringField(s, FieldUsername); err != nil {
		return Credentials{}, err
	}
	if c.Password, err = stringField(s, FieldPassword); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// TokensToStruct encodes a token pair.
func TokensToStruct(t Tokens) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldOwnerID:      structpb.NewStringValue(t.OwnerID),
		FieldAccessToken:  structpb.NewStringValue(t.AccessToken),
		FieldRefreshToken: structpb.NewStringValue(t.RefreshToken),
	})
}

// TokensFromStruct decodes a token pair.
func TokensFromStruct(s *structpb.Struct) (Tokens, error) {
	var t Tokens
	var err error
	if t.OwnerID, err = stringField(s, FieldOwnerID); err != nil {
		return Tokens{}, err
	}
	if t.AccessToken, err = stringField(s, FieldAccessToken); err != nil {
		return Tokens{}, err
	}
	if t.RefreshToken, err = stringField(s, FieldRefreshToken); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

// RecordToStruct encodes one FetchAll stream item. OwnerID is not sent.
func RecordToStruct(r storage.Record) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldID:        structpb.NewStringValue(r.ID),
		FieldBlob:      structpb.NewStringValue(base64.StdEncoding.EncodeToString(r.Blob)),
		FieldCreatedAt: structpb.NewStringValue(r.CreatedAt.UTC().Format(time.RFC3339Nano)),
		FieldUpdatedAt: structpb.NewStringValue(r.UpdatedAt.UTC().Format(time.RFC3339Nano)),
	})
}

// RecordFromStruct decodes one FetchAll stream item for ownerID.
func RecordFromStruct(ownerID string, s *structpb.Struct) (storage.Record, error) {
	r := storage.Record{OwnerID: ownerID}
	var err error
	if r.ID, err = stringField(s, FieldID); err != nil {
		return storage.Record{}, err
	}
	if r.Blob, err = bytesField(s, FieldBlob); err != nil {
		return storage.Record{}, err
	}
	if r.CreatedAt, err = timeField(s, FieldCreatedAt); err != nil {
		return storage.Record{}, err
	}
	if r.UpdatedAt, err = timeField(s, FieldUpdatedAt); err != nil {
		return storage.Record{}, err
	}
	return r, nil
}

// UpdateToStruct encodes an Update request.
func UpdateToStruct(recordID string, blob []byte) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldID:   structpb.NewStringValue(recordID),
		FieldBlob: structpb.NewStringValue(base64.StdEncoding.EncodeToString(blob)),
	})
}

// UpdateFromStruct decodes an Update request.
func UpdateFromStruct(s *structpb.Struct) (string, []byte, error) {
	id, err := stringField(s, FieldID)
	if err != nil {
		return "", nil, err
	}
	blob, err := bytesField(s, FieldBlob)
	if err != nil {
		return "", nil, err
	}
	return id, blob, nil
}

// ParamsToStruct encodes vault parameters.
func ParamsToStruct(p *storage.Params) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		FieldSalt:       structpb.NewStringValue(base64.StdEncoding.EncodeToString(p.Salt)),
		FieldIterations: structpb.NewNumberValue(float64(p.Iterations)),
		FieldCipher:     structpb.NewStringValue(p.Cipher),
		FieldCanary:     structpb.NewStringValue(base64.StdEncoding.EncodeToString(p.Canary)),
	})
}

// ParamsFromStruct decodes vault parameters.
func ParamsFromStruct(s *structpb.Struct) (*storage.Params, error) {
	p := &storage.Params{}
	var err error
	if p.Salt, err = bytesField(s, FieldSalt); err != nil {
		return nil, err
	}
	n, err := numberField(s, FieldIterations)
	if err != nil {
		return nil, err
	}
	if n < 0 || n != float64(int(n)) {
		return nil, fmt.Errorf("%w: field %q: %v", common.ErrInvalidInput, FieldIterations, n)
	}
	p.Iterations = int(n)
	if p.Cipher, err = stringField(s, FieldCipher); err != nil {
		return nil, err
	}
	if p.Canary, err = bytesField(s, FieldCanary); err != nil {
		return nil, err
	}
	return p, nil
}

// BlobsToStruct encodes a ReplaceBlobs request keyed by record id.
func BlobsToStruct(blobs map[string][]byte) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(blobs))
	for id, blob := range blobs {
		fields[id] = structpb.NewStringValue(base64.StdEncoding.EncodeToString(blob))
	}
	return newStruct(fields)
}

// BlobsFromStruct decodes a ReplaceBlobs request.
func BlobsFromStruct(s *structpb.Struct) (map[string][]byte, error) {
	blobs := make(map[string][]byte, len(s.GetFields()))
	for id := range s.GetFields() {
		b, err := bytesField(s, id)
		if err != nil {
			return nil, err
		}
		blobs[id] = b
	}
	return blobs, nil
}
