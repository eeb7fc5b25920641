// Package client assembles the roomchat client from its configuration.
//
// Build opens the local database, restores the persisted credential and
// wires the layers bottom-up:
//
//	rpc.HTTPGateway -> retry.Policy -> rooms.Service -> session.Machine
//
// with auth.Client refreshing tokens for the retry policy, a feed.Feed per
// room visit and, when an S3 bucket is configured, pinning.S3Service for
// attachments. The resulting Client owns every resource it opened;
// Close releases them in reverse order.
package client
