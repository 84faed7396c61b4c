// Package client is the gRPC side of authctl.
//
// GRPCClient keeps the current token pair in memory, attaches the access
// token to every call and retries a call once after refreshing when the
// server reports an expired access token. Status codes are mapped to the
// sentinel errors in errors.go so callers can use errors.Is.
package client
