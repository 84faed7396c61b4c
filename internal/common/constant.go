package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on authenticated calls.
const AccessTokenHeaderName = "access_token"

// ForwardedForHeaderName names the client address for rate limiting, but only
// when the transport peer is a trusted proxy.
const ForwardedForHeaderName = "x-forwarded-for"
