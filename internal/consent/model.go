package consent

import (
	"fmt"
	"time"
)

// Scope names one independently grantable category of EHR data.
type Scope string

const (
	ScopeProfile        Scope = "profile"
	ScopeMedicalHistory Scope = "medical_history"
	ScopePrescriptions  Scope = "prescriptions"
	ScopeTestReports    Scope = "test_reports"
	ScopeIoTDevices     Scope = "iot_devices"
)

// AllScopes returns the closed scope vocabulary.
func AllScopes() []Scope {
	return []Scope{
		ScopeProfile,
		ScopeMedicalHistory,
		ScopePrescriptions,
		ScopeTestReports,
		ScopeIoTDevices,
	}
}

// allowedDurationDays enumerates the grant durations a patient may choose.
// Arbitrary durations are rejected at issuance.
var allowedDurationDays = map[int]bool{7: true, 14: true}

// ValidDurationDays reports whether d is an allowed grant duration.
func ValidDurationDays(d int) bool {
	return allowedDurationDays[d]
}

// ParseScope validates a single scope tag against the closed vocabulary.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeProfile, ScopeMedicalHistory, ScopePrescriptions, ScopeTestReports, ScopeIoTDevices:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// ParseScopes validates a scope list: non-empty, every tag in the closed
// vocabulary, duplicates removed.
func ParseScopes(tags []string) ([]Scope, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("scope must not be empty")
	}
	seen := make(map[Scope]bool, len(tags))
	scopes := make([]Scope, 0, len(tags))
	for _, t := range tags {
		s, err := ParseScope(t)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		scopes = append(scopes, s)
	}
	return scopes, nil
}

// ContainsScope reports whether set includes s.
func ContainsScope(set []Scope, s Scope) bool {
	for _, have := range set {
		if have == s {
			return true
		}
	}
	return false
}

// ScopeSubset reports whether every scope in sub is present in super.
func ScopeSubset(sub, super []Scope) bool {
	for _, s := range sub {
		if !ContainsScope(super, s) {
			return false
		}
	}
	return true
}

// ScopeStrings converts a scope set to plain strings for serialization.
func ScopeStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

// Grant is the authoritative, revocable record of one patient authorization.
// It lives in the consent store under its token's jti and is reclaimed by
// the store's TTL at ExpiresAt.
type Grant struct {
	ID                  string    `json:"id"`
	PatientID           string    `json:"patient_id"`
	RecipientID         string    `json:"recipient_id"`
	RecipientHospitalID string    `json:"recipient_hospital_id"`
	Scope               []Scope   `json:"scope"`
	GrantedAt           time.Time `json:"granted_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Revoked             bool      `json:"revoked"`
}

// Expired reports whether the grant's natural expiry has passed.
func (g *Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// TTL returns the remaining lifetime of the grant. The store must always
// derive key TTLs from this value so a rewrite can never extend a grant.
func (g *Grant) TTL(now time.Time) time.Duration {
	return g.ExpiresAt.Sub(now)
}
