// Package common contains shared constants and sentinel errors used across
// roomchat client components.
package common

import "time"

// AuthorizationHeaderName carries the bearer access token on outbound
// JSON-RPC requests.
const AuthorizationHeaderName = "Authorization"

// ForbiddenCode is the remote error code the node uses for an expired or
// invalid access token.
const ForbiddenCode = 403

// AuthFailureCode is the code reported when credentials are incomplete and
// no request could be built.
const AuthFailureCode = 500

// DefaultCallTimeout bounds a single remote call.
const DefaultCallTimeout = 10 * time.Second
