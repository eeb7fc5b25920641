// Package rpc turns room operations into authenticated JSON-RPC 2.0 calls
// against the application node.
//
// Builder addresses a call from the current session credential and refuses
// (without touching the network) when the credential is incomplete.
// HTTPGateway executes the three call shapes (execute, mutate, query) and
// classifies every outcome as a result, a remote *Error carrying a numeric
// code, or a *TransportError with no code. The gateway never retries; expired
// credentials are handled one layer up by package retry.
package rpc
