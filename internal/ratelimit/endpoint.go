package ratelimit

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint client rate limit configuration.
// This can be attached to Huma operations via the Metadata field.
//
// Operations without an EndpointConfig are not guarded per client. Per-user
// write limits are enforced by the bookmark service, not by this config.
type EndpointConfig struct {
	// Limit is the maximum number of requests per Window for one client.
	Limit int64

	// Window is the trailing interval Limit applies to.
	Window time.Duration

	// Disabled skips client rate limiting entirely for this endpoint.
	Disabled bool
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
