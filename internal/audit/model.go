package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the trail. Consent lifecycle transitions and every
// consent-gated EHR access, allowed or denied, get an entry.
const (
	ActionConsentGranted = "consent.granted"
	ActionConsentRevoked = "consent.revoked"
	ActionConsentDenied  = "consent.denied"
	ActionEHRRead        = "ehr.read"
	ActionEHRWrite       = "ehr.write"
)

const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// Changes captures the before/after state of a mutated resource. Reads
// leave it nil.
type Changes struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// Event is one append-only audit trail entry. Events are never updated or
// deleted after insert.
type Event struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ActorID      string    `db:"actor_id" json:"actor_id"`
	ActorRole    string    `db:"actor_role" json:"actor_role"`
	HospitalID   string    `db:"hospital_id" json:"hospital_id,omitempty"`
	PatientID    string    `db:"patient_id" json:"patient_id,omitempty"`
	Action       string    `db:"action" json:"action"`
	ResourceType string    `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   string    `db:"resource_id" json:"resource_id,omitempty"`
	GrantID      string    `db:"grant_id" json:"grant_id,omitempty"`
	Outcome      string    `db:"outcome" json:"outcome"`
	Detail       string    `db:"detail" json:"detail,omitempty"`
	Changes      *Changes  `db:"changes" json:"changes,omitempty"`
	RequestID    string    `db:"request_id" json:"request_id,omitempty"`
	IPAddress    string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    string    `db:"user_agent" json:"user_agent,omitempty"`
	Recorded     time.Time `db:"recorded" json:"recorded"`
}
