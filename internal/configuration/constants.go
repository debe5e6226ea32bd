package configuration

const AppName = "authd"

// JWT audience constants for token type separation.
const (
	AudienceAccessToken  = "app:*"
	AudienceRefreshToken = "auth:refresh"
)

// JWT token expiry times (in minutes).
const (
	AccessTokenExpiry  = 60
	RefreshTokenExpiry = 600
)

// TOTP parameters per RFC 6238.
const (
	TOTPSecretSize    = 20 // bytes, 160 bits
	TOTPDigits        = 6
	TOTPPeriodSeconds = 30
	TOTPCodeTTL       = 90 // seconds a used code is held for replay detection
)

// Recovery code batch parameters.
const (
	RecoveryCodeCount = 8
	RecoveryCodeBytes = 10 // 80 bits of entropy per code
)

// MFA verification rate limiting.
const (
	MFAMaxAttempts    = 5
	MFALockoutSeconds = 300
)

// Session lifetimes.
const (
	SessionExpiryHours          = 6
	PendingSessionExpiryMinutes = 30
)

const (
	CacheMFAAttemptsKey = "mfa:attempts:%s"
	CacheTOTPUsedKey    = "totp:used:%s:%s"
)

const EventsTopicAuth = "auth.events"

var ConfigFileSearchPaths = []string{
	"config.yaml",
	"/etc/authd/config.yaml",
}
