package consent

import "context"

// Store is the authoritative, revocable home of grant state. Records are
// reclaimed automatically at their expiry through the store's TTL; no
// background sweeping is required of callers.
//
// Implementations must treat "never existed" and "expired" identically in
// Get (both ErrConsentNotFound) so grant existence cannot be probed.
type Store interface {
	// Put upserts the grant under its id with a TTL equal to the
	// remaining time until ExpiresAt, never a fixed window, so a
	// rewrite can never extend a grant's life.
	Put(ctx context.Context, grant *Grant) error

	// Get returns the live record, or ErrConsentNotFound uniformly for
	// missing, expired, and reclaimed grants as well as for store
	// failures (fail closed).
	Get(ctx context.Context, id string) (*Grant, error)

	// Revoke flips the record's revoked flag, preserving its remaining
	// TTL. It reports false without error when no live record exists:
	// the end state (no valid access) is identical either way.
	Revoke(ctx context.Context, id string) (bool, error)

	// IsRevoked is a fast-path hint checked ahead of Get. It must never
	// be the only check; the full record fetch stays authoritative.
	IsRevoked(ctx context.Context, id string) (bool, error)

	// GrantIDsByPatient lists grant ids ever indexed for the patient.
	// Some may already be reclaimed; callers filter through Get.
	GrantIDsByPatient(ctx context.Context, patientID string) ([]string, error)

	Close() error
}
