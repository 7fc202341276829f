package service

import (
	"errors"

	"github.com/Skotchmaster/apirest/pkg/tokens"
)

var (
	ErrMalformedToken   = tokens.ErrMalformedToken
	ErrInvalidSignature = tokens.ErrInvalidSignature
	ErrConfiguration    = tokens.ErrConfiguration

	ErrInvalidIssuer     = errors.New("invalid token issuer")
	ErrTokenExpired      = errors.New("token expired")
	ErrStaleRefreshToken = errors.New("stale refresh token")
	ErrFeatureDisabled   = errors.New("feature disabled")
	ErrAccountDisabled   = errors.New("account disabled")
	ErrInsufficientRole  = errors.New("insufficient role")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
)

// FailureReason maps an auth error to a stable label for logs and metrics.
// Clients never see it.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrStaleRefreshToken):
		return "stale_refresh"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrFeatureDisabled):
		return "feature_disabled"
	case errors.Is(err, ErrInsufficientRole):
		return "insufficient_role"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}
