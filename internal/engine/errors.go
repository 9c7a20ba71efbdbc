package engine

import "errors"

// Errors surfaced from provider/policy resolution (spec §4.2.1). Run
// returns them unwrapped, so callers can match them with errors.Is.
var (
	ErrNoProviderConnected = errors.New("engine: no provider is connected and keyed")
	ErrProviderUnkeyed     = errors.New("engine: missing_api_key")
	ErrProviderDisabled    = errors.New("engine: provider_disabled")
	ErrNoToolCapableProvider = errors.New("engine: tool calling required but no connected provider supports tools")
)
