package handlers

const (
	CSRFHeaderName     = "X-CSRF-Token"
	FamilyHeaderName   = "X-Family-ID"
	RequestIDHeader    = "X-Request-ID"
	maxRequestBodySize = 1 << 20

	ErrInvalidRequestBody    = "Invalid request body"
	ErrUnauthorized          = "Unauthorized"
	ErrInvalidCSRFToken      = "Invalid CSRF token"
	ErrTooManyRequests       = "Too many requests"
	ErrUpstreamUnavailable   = "Upstream service unavailable"
	ErrInternalServerError   = "Internal server error"
	ErrInvalidIdentifier     = "Invalid identifier"
	ErrOAuthNotConfigured    = "OAuth provider not configured"
	ErrInvalidOAuthState     = "Invalid OAuth state"
	ErrMissingOAuthCode      = "Missing authorization code"
	ErrOAuthExchangeFailed   = "Failed to exchange OAuth code"
	ErrOAuthUserInfoFailed   = "Failed to fetch OAuth user info"
	passwordResetRequestedOK = "If an account exists for that email, a reset link has been sent"
)
