package cache

type ICache interface {
	// GetMFAAttempts returns the current number of failed MFA attempts for a
	// principal.
	GetMFAAttempts(principalID string) (int, error)
	// IncrementMFAAttempts increments failed MFA attempts and sets the lockout
	// TTL. Uses configuration.MFALockoutSeconds for the lockout duration.
	IncrementMFAAttempts(principalID string) error
	// ResetMFAAttempts clears the failed attempts counter (called on
	// successful verification).
	ResetMFAAttempts(principalID string) error

	// MarkTOTPCodeUsed records a verified TOTP code for replay detection.
	// Returns false when the code was already used inside its validity window.
	MarkTOTPCodeUsed(principalID string, code string) (bool, error)

	Close() error
}
