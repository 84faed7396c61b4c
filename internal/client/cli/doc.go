// Package cli is the interactive authctl shell.
//
// It reads commands line by line, prompts for the fields each one needs and
// talks to the auth server through client.GRPCClient. Tokens obtained by
// login live in memory for the duration of the session.
package cli
