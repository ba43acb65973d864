package protocol

const (
	// Transport/shape validation (rejected at submission).
	ErrBadCommand = "E_BAD_COMMAND"

	// Match routing/state (rejected at submission).
	ErrMatchNotFound = "E_MATCH_NOT_FOUND"
	ErrMatchEnded    = "E_MATCH_ENDED"
	ErrRateLimit     = "E_RATE_LIMIT"

	// In-tick drop diagnostics (never surfaced to the producer as an error).
	ErrNotOwner      = "E_NOT_OWNER"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNoResource    = "E_NO_RESOURCE"

	// Entity-store corruption. Must never occur in correct resolver logic.
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadCommand:    {},
	ErrMatchNotFound: {},
	ErrMatchEnded:    {},
	ErrRateLimit:     {},
	ErrNotOwner:      {},
	ErrInvalidTarget: {},
	ErrNoResource:    {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
