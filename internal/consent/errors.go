package consent

import (
	"errors"
	"fmt"
	"strings"
)

// Denial taxonomy. Every error here means "access denied"; the validator
// never recovers from any of them and callers must fail closed. Externally
// only InsufficientScope discloses detail (to the already-authorized
// caller); the rest collapse into generic denial responses so a third
// party cannot probe whether a given consent id ever existed.
var (
	// ErrInvalidToken covers a mis-signed, malformed, or expired token.
	// The sub-case is deliberately not distinguished.
	ErrInvalidToken = errors.New("invalid consent token")

	// ErrConsentNotFound covers expired, reclaimed, and never-existed
	// grants uniformly, and any store failure (fail closed).
	ErrConsentNotFound = errors.New("consent not found")

	ErrConsentRevoked = errors.New("consent revoked")
	ErrConsentExpired = errors.New("consent expired")

	ErrRecipientMismatch = errors.New("consent not granted to this recipient")
	ErrHospitalMismatch  = errors.New("consent not granted to this hospital")

	// ErrAuditFailure aborts the triggering operation: an unaudited
	// grant or access is treated as unauthorized.
	ErrAuditFailure = errors.New("audit record failed")
)

// InsufficientScopeError is returned when a valid grant does not cover the
// requested data categories. It reports both sets; the caller already knows
// its own request, so this discloses nothing new.
type InsufficientScopeError struct {
	Required []Scope
	Granted  []Scope
}

func (e *InsufficientScopeError) Error() string {
	return fmt.Sprintf("insufficient scope: required [%s], granted [%s]",
		strings.Join(ScopeStrings(e.Required), " "),
		strings.Join(ScopeStrings(e.Granted), " "))
}

// IsDenial reports whether err belongs to the authorization denial
// taxonomy, as opposed to an unexpected internal failure.
func IsDenial(err error) bool {
	var scopeErr *InsufficientScopeError
	switch {
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrConsentNotFound),
		errors.Is(err, ErrConsentRevoked),
		errors.Is(err, ErrConsentExpired),
		errors.Is(err, ErrRecipientMismatch),
		errors.Is(err, ErrHospitalMismatch),
		errors.As(err, &scopeErr):
		return true
	}
	return false
}
