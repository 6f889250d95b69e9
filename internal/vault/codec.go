package vault

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"google.golang.org/protobuf/encoding/protowire"
)

// CodecVersion is the first byte of every encoded credential.
const CodecVersion byte = 0x01

const (
	fieldName     protowire.Number = 1
	fieldUsername protowire.Number = 2
	fieldSecret   protowire.Number = 3
)

// Encode serialises c as the version byte followed by a protobuf-wire
// message with all three fields present, in field order.
func Encode(c Credential) ([]byte, error) {
	if !utf8.ValidString(c.Name) {
		return nil, fmt.Errorf("%w: name is not valid UTF-8", common.ErrInvalidInput)
	}
	if !utf8.ValidString(c.Username) {
		return nil, fmt.Errorf("%w: username is not valid UTF-8", common.ErrInvalidInput)
	}

	size := 1 +
		protowire.SizeTag(fieldName) + protowire.SizeBytes(len(c.Name)) +
		protowire.SizeTag(fieldUsername) + protowire.SizeBytes(len(c.Username)) +
		protowire.SizeTag(fieldSecret) + protowire.SizeBytes(len(c.Secret))

	b := make([]byte, 0, size)
	b = append(b, CodecVersion)
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, c.Name)
	b = protowire.AppendTag(b, fieldUsername, protowire.BytesType)
	b = protowire.AppendString(b, c.Username)
	b = protowire.AppendTag(b, fieldSecret, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Secret)
	return b, nil
}

// Decode parses the output of Encode. Anything that is not exactly one
// name, one username and one secret under a known version fails with
// common.ErrMalformedRecord; nothing is returned half-populated. The secret
// is copied out of b only after the whole input has been validated, and an
// empty secret decodes as nil.
func Decode(b []byte) (Credential, error) {
	if len(b) == 0 {
		return Credential{}, malformed("empty input")
	}
	if b[0] != CodecVersion {
		return Credential{}, malformed("unsupported schema version %d", b[0])
	}
	b = b[1:]

	var (
		c      Credential
		secret []byte
		seen   [fieldSecret + 1]bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Credential{}, malformed("bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		if num < fieldName || num > fieldSecret {
			return Credential{}, malformed("unknown field %d", num)
		}
		if typ != protowire.BytesType {
			return Credential{}, malformed("field %d has wire type %d", num, typ)
		}
		if seen[num] {
			return Credential{}, malformed("duplicate field %d", num)
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Credential{}, malformed("field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
		seen[num] = true

		switch num {
		case fieldName:
			if !utf8.Valid(v) {
				return Credential{}, malformed("name is not valid UTF-8")
			}
			c.Name = string(v)
		case fieldUsername:
			if !utf8.Valid(v) {
				return Credential{}, malformed("username is not valid UTF-8")
			}
			c.Username = string(v)
		case fieldSecret:
			secret = v
		}
	}

	for num := fieldName; num <= fieldSecret; num++ {
		if !seen[num] {
			return Credential{}, malformed("missing field %d", num)
		}
	}
	if len(secret) > 0 {
		c.Secret = bytes.Clone(secret)
	}
	return c, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrMalformedRecord, fmt.Sprintf(format, args...))
}
