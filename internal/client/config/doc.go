// Package config loads runtime configuration for authctl.
//
// Sources, in increasing precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected with -c or -config.
//  3. AUTHCTL_SERVER_ADDR and AUTHCTL_REQUEST_TIMEOUT.
//  4. Command-line flags -a (address) and -t (timeout in seconds).
//
// File example:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "5s"
//	}
package config
