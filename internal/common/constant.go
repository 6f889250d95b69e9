package common

const (
	// AccessTokenHeaderName is the gRPC metadata key used to carry the
	// access token on outbound requests.
	AccessTokenHeaderName = "access_token"

	// OwnerIDHeaderName carries the owner id the client believes it acts for.
	// The server rejects calls where it differs from the token subject.
	OwnerIDHeaderName = "owner_id"
)
