package consent

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/samruddhi-health/consent-api/internal/audit"
)

// GrantRequest is a patient's decision to share data with one staff member.
type GrantRequest struct {
	PatientID           string
	RecipientID         string
	RecipientHospitalID string
	Scope               []string
	DurationDays        int
}

// GrantResult is returned to the patient on a successful grant. The token
// appears here once; afterwards only the grant id is addressable.
type GrantResult struct {
	Token string `json:"token"`
	Grant *Grant `json:"grant"`
}

// GrantStatus is the point-in-time state of one grant.
type GrantStatus struct {
	Grant  *Grant `json:"grant"`
	Status string `json:"status"`
}

const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
)

// Service owns the consent lifecycle: issuing grants, revoking them, and
// reporting their status. Every lifecycle transition is audited, and a
// failed audit aborts the transition.
type Service struct {
	codec    Codec
	store    Store
	recorder audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(codec Codec, store Store, recorder audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		codec:    codec,
		store:    store,
		recorder: recorder,
		logger:   logger.With().Str("component", "consent").Logger(),
		now:      time.Now,
	}
}

// Grant issues a new consent token and persists its grant record. A new
// grant supersedes any live grant for the same patient, recipient and
// hospital: the old ones are revoked so at most one grant per triple is
// active at a time.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	scope, err := ParseScopes(req.Scope)
	if err != nil {
		return nil, err
	}

	token, grant, err := s.codec.Issue(IssueRequest{
		PatientID:           req.PatientID,
		RecipientID:         req.RecipientID,
		RecipientHospitalID: req.RecipientHospitalID,
		Scope:               scope,
		DurationDays:        req.DurationDays,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, grant); err != nil {
		return nil, err
	}

	superseded := s.supersede(ctx, grant)

	// Each superseded grant gets its own revocation entry so the trail
	// reconstructs every transition, not just the ones a patient asked
	// for by name.
	var auditErr error
	for _, oldID := range superseded {
		if err := s.recorder.Record(ctx, &audit.Event{
			ActorID:      grant.PatientID,
			ActorRole:    "patient",
			HospitalID:   grant.RecipientHospitalID,
			PatientID:    grant.PatientID,
			Action:       audit.ActionConsentRevoked,
			ResourceType: "consent",
			ResourceID:   oldID,
			GrantID:      oldID,
			Outcome:      audit.OutcomeSuccess,
			Detail:       "superseded by " + grant.ID,
		}); err != nil {
			auditErr = err
			break
		}
	}

	if auditErr == nil {
		auditErr = s.recorder.Record(ctx, &audit.Event{
			ActorID:      grant.PatientID,
			ActorRole:    "patient",
			HospitalID:   grant.RecipientHospitalID,
			PatientID:    grant.PatientID,
			Action:       audit.ActionConsentGranted,
			ResourceType: "consent",
			ResourceID:   grant.ID,
			GrantID:      grant.ID,
			Outcome:      audit.OutcomeSuccess,
			Changes:      &audit.Changes{After: grant},
		})
	}
	if auditErr != nil {
		// An unaudited grant must not stand. Best-effort rollback; the
		// TTL reclaims the record even if this revoke also fails. The
		// superseded grants stay revoked: losing access is the safe
		// direction.
		if _, rerr := s.store.Revoke(ctx, grant.ID); rerr != nil {
			s.logger.Error().Err(rerr).Str("grant_id", grant.ID).
				Msg("rollback revoke failed after audit failure")
		}
		return nil, ErrAuditFailure
	}

	s.logger.Info().
		Str("grant_id", grant.ID).
		Str("patient_id", grant.PatientID).
		Str("recipient_id", grant.RecipientID).
		Strs("scope", ScopeStrings(grant.Scope)).
		Time("expires_at", grant.ExpiresAt).
		Msg("consent granted")

	return &GrantResult{Token: token, Grant: grant}, nil
}

// supersede revokes the patient's other live grants to the same recipient
// and hospital and returns the ids it revoked so the caller can audit each
// one. Failures are logged and skipped: the new grant stands regardless,
// and stale grants age out through their TTL.
func (s *Service) supersede(ctx context.Context, fresh *Grant) []string {
	ids, err := s.store.GrantIDsByPatient(ctx, fresh.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", fresh.PatientID).
			Msg("supersede scan failed")
		return nil
	}
	var revoked []string
	for _, id := range ids {
		if id == fresh.ID {
			continue
		}
		old, err := s.store.Get(ctx, id)
		if err != nil || old.Revoked {
			continue
		}
		if old.RecipientID != fresh.RecipientID || old.RecipientHospitalID != fresh.RecipientHospitalID {
			continue
		}
		if _, err := s.store.Revoke(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("grant_id", id).Msg("supersede revoke failed")
			continue
		}
		revoked = append(revoked, id)
		s.logger.Info().Str("grant_id", id).Str("superseded_by", fresh.ID).
			Msg("grant superseded")
	}
	return revoked
}

// Revoke withdraws a grant and reports whether a live record was actually
// flipped. Only the granting patient may revoke it; revoking an
// already-revoked or vanished grant is an idempotent no-op.
func (s *Service) Revoke(ctx context.Context, patientID, grantID string) (bool, error) {
	grant, err := s.store.Get(ctx, grantID)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			// Nothing left to withdraw.
			return false, nil
		}
		return false, err
	}
	if grant.PatientID != patientID {
		// A stranger's revoke attempt discloses nothing: same answer as
		// for a grant that never existed.
		return false, nil
	}
	if grant.Revoked {
		return false, nil
	}

	if _, err := s.store.Revoke(ctx, grantID); err != nil {
		return false, err
	}

	err = s.recorder.Record(ctx, &audit.Event{
		ActorID:      patientID,
		ActorRole:    "patient",
		HospitalID:   grant.RecipientHospitalID,
		PatientID:    patientID,
		Action:       audit.ActionConsentRevoked,
		ResourceType: "consent",
		ResourceID:   grantID,
		GrantID:      grantID,
		Outcome:      audit.OutcomeSuccess,
	})
	if err != nil {
		// The revocation itself stands: losing access is the safe
		// direction. The caller still sees the failure.
		return true, ErrAuditFailure
	}

	s.logger.Info().Str("grant_id", grantID).Str("patient_id", patientID).
		Msg("consent revoked")
	return true, nil
}

// Status reports the current state of a grant to its patient, its
// recipient, or an admin. Anyone else gets ErrConsentNotFound.
func (s *Service) Status(ctx context.Context, callerID, callerRole, grantID string) (*GrantStatus, error) {
	grant, err := s.store.Get(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if callerRole != "admin" && callerID != grant.PatientID && callerID != grant.RecipientID {
		return nil, ErrConsentNotFound
	}

	status := StatusActive
	switch {
	case grant.Revoked:
		status = StatusRevoked
	case grant.Expired(s.now()):
		status = StatusExpired
	}
	return &GrantStatus{Grant: grant, Status: status}, nil
}

// ListGrants returns the patient's grants that still have a live store
// record, newest first.
func (s *Service) ListGrants(ctx context.Context, patientID string) ([]*GrantStatus, error) {
	ids, err := s.store.GrantIDsByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	out := make([]*GrantStatus, 0, len(ids))
	for _, id := range ids {
		grant, err := s.store.Get(ctx, id)
		if err != nil {
			// Reclaimed since it was indexed.
			continue
		}
		status := StatusActive
		switch {
		case grant.Revoked:
			status = StatusRevoked
		case grant.Expired(s.now()):
			status = StatusExpired
		}
		out = append(out, &GrantStatus{Grant: grant, Status: status})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Grant.GrantedAt.After(out[j].Grant.GrantedAt)
	})
	return out, nil
}
