package apierrors

import "errors"

// APIError carries an HTTP status and a stable machine-readable code.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return e.Code
}

func NewAPIError(status int, code string) *APIError {
	return &APIError{Status: status, Code: code}
}

// Sentinel errors for the authentication core. The HTTP layer maps these to
// API errors via FromError; internal callers match them with errors.Is.
var (
	// ErrAuthenticationFailed covers unknown username, wrong password and
	// disabled accounts. The three cases are deliberately indistinguishable
	// to prevent user enumeration.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMfaCodeRequired is returned when the principal has active MFA but the
	// authentication attempt carried no TOTP or recovery code.
	ErrMfaCodeRequired = errors.New("mfa code required")

	// ErrInvalidMfaCode is returned when both TOTP verification and recovery
	// code consumption reject the submitted code.
	ErrInvalidMfaCode = errors.New("invalid mfa code")

	// ErrMfaEnrollmentRequired is returned under mandatory-MFA deployments when
	// a principal without MFA authenticates. The caller must redirect into
	// enrollment.
	ErrMfaEnrollmentRequired = errors.New("mfa enrollment required")

	// ErrAlreadyEnrolled is returned by BeginEnrollment when an MFA secret
	// (pending or active) already exists for the principal.
	ErrAlreadyEnrolled = errors.New("mfa already enrolled")

	// ErrInvalidCode is returned by ConfirmEnrollment when the submitted TOTP
	// code does not match the pending secret.
	ErrInvalidCode = errors.New("invalid enrollment confirmation code")

	// ErrMfaNotEnrolled is returned when deleting MFA for a principal that has
	// no MFA secret. Recognizable no-op, storage is left untouched.
	ErrMfaNotEnrolled = errors.New("mfa not enrolled")

	// ErrStoreConflict signals a lost concurrent-write race (double confirm,
	// double consume, batch replace collision). The losing caller must retry
	// the single operation, never the whole flow.
	ErrStoreConflict = errors.New("storage conflict")

	// ErrTransientStorage signals a storage timeout or unavailability.
	// Retryable by the caller.
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrSessionInvalid covers unknown, expired and wrong-stage sessions.
	ErrSessionInvalid = errors.New("session invalid or expired")

	// ErrNotFound is the storage-level miss. Services translate it into a
	// domain error before it reaches a caller.
	ErrNotFound = errors.New("record not found")

	ErrRateLimited = errors.New("too many failed mfa attempts")
)

// FromError translates core sentinel errors into API errors. Unrecognized
// errors collapse into an opaque 500.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return NewAPIError(401, "AUTHENTICATION_FAILED")
	case errors.Is(err, ErrMfaCodeRequired):
		return NewAPIError(401, "MFA_CODE_REQUIRED")
	case errors.Is(err, ErrMfaEnrollmentRequired):
		return NewAPIError(403, "MFA_ENROLLMENT_REQUIRED")
	case errors.Is(err, ErrInvalidMfaCode):
		return NewAPIError(401, "INVALID_MFA_CODE")
	case errors.Is(err, ErrAlreadyEnrolled):
		return NewAPIError(409, "ALREADY_ENROLLED")
	case errors.Is(err, ErrInvalidCode):
		return NewAPIError(401, "INVALID_CODE")
	case errors.Is(err, ErrMfaNotEnrolled):
		return NewAPIError(404, "MFA_NOT_ENROLLED")
	case errors.Is(err, ErrStoreConflict):
		return NewAPIError(409, "STORE_CONFLICT")
	case errors.Is(err, ErrTransientStorage):
		return NewAPIError(503, "TRANSIENT_STORAGE_FAILURE")
	case errors.Is(err, ErrSessionInvalid):
		return NewAPIError(401, "SESSION_INVALID")
	case errors.Is(err, ErrNotFound):
		return NewAPIError(404, "NOT_FOUND")
	case errors.Is(err, ErrRateLimited):
		return NewAPIError(429, "MFA_RATE_LIMITED")
	default:
		return NewAPIError(500, "INTERNAL_SERVER_ERROR")
	}
}
