package consent

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AccessRequest is one attempt by a staff member to use a consent token.
type AccessRequest struct {
	// Token is the bearer consent token presented with the request.
	Token string
	// CallerID is the authenticated staff member making the request.
	CallerID string
	// CallerHospitalID is the hospital the caller belongs to.
	CallerHospitalID string
	// RequiredScope lists the data categories the operation needs. Empty
	// means "whatever the grant covers".
	RequiredScope []Scope
}

// Authorization is the outcome of a successful validation: the live grant
// plus the scope the operation may actually use.
type Authorization struct {
	Grant *Grant
	// EffectiveScope is RequiredScope when given (already proven a subset
	// of the grant), otherwise the grant's full scope. Downstream reads
	// must disclose no more than this.
	EffectiveScope []Scope
}

// Validator runs the full consent check: the stateless token layer first,
// then the authoritative store record. Both layers must pass; the store
// record always wins where they disagree (revocation, expiry).
type Validator struct {
	codec  Codec
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewValidator(codec Codec, store Store, logger zerolog.Logger) *Validator {
	return &Validator{
		codec:  codec,
		store:  store,
		logger: logger.With().Str("component", "consent_validator").Logger(),
		now:    time.Now,
	}
}

// Validate runs the denial checks in a fixed order and stops at the first
// failure. Every returned error is terminal: there is no partial grant and
// no retry path, and any store fault surfaces as ErrConsentNotFound.
//
// Revocation is checked against the store at the moment of this call. A
// revoke that commits after the record is read here is not seen by the
// in-flight request: the two can race, and the request wins by at most the
// store's write latency. The guarantee is that every validation started
// after a revocation commits observes it and is denied, not that a
// concurrent request is cut off mid-flight.
func (v *Validator) Validate(ctx context.Context, req AccessRequest) (*Authorization, error) {
	claims, err := v.codec.Verify(req.Token)
	if err != nil {
		v.deny(req, "", err)
		return nil, err
	}

	// Fast-path revocation hint. Errors here are ignored: the full record
	// fetch below remains the authoritative check.
	if revoked, err := v.store.IsRevoked(ctx, claims.ID); err == nil && revoked {
		v.deny(req, claims.ID, ErrConsentRevoked)
		return nil, ErrConsentRevoked
	}

	grant, err := v.store.Get(ctx, claims.ID)
	if err != nil {
		v.deny(req, claims.ID, err)
		return nil, err
	}

	if grant.Revoked {
		v.deny(req, grant.ID, ErrConsentRevoked)
		return nil, ErrConsentRevoked
	}

	// A store record past its expiry should already be reclaimed by the
	// TTL, but the record is authoritative, so check anyway.
	if grant.Expired(v.now()) {
		v.deny(req, grant.ID, ErrConsentExpired)
		return nil, ErrConsentExpired
	}

	if req.CallerID != grant.RecipientID {
		v.deny(req, grant.ID, ErrRecipientMismatch)
		return nil, ErrRecipientMismatch
	}

	// A hospital-bound grant demands an exactly matching hospital claim
	// from the caller: a caller carrying no hospital claim is denied on
	// such grants rather than waved through. Only a grant issued without
	// a hospital binding skips this check.
	if grant.RecipientHospitalID != "" && req.CallerHospitalID != grant.RecipientHospitalID {
		v.deny(req, grant.ID, ErrHospitalMismatch)
		return nil, ErrHospitalMismatch
	}

	if !ScopeSubset(req.RequiredScope, grant.Scope) {
		scopeErr := &InsufficientScopeError{Required: req.RequiredScope, Granted: grant.Scope}
		v.deny(req, grant.ID, scopeErr)
		return nil, scopeErr
	}

	effective := req.RequiredScope
	if len(effective) == 0 {
		effective = grant.Scope
	}

	return &Authorization{
		Grant:          grant,
		EffectiveScope: append([]Scope(nil), effective...),
	}, nil
}

func (v *Validator) deny(req AccessRequest, grantID string, err error) {
	v.logger.Warn().
		Str("caller_id", req.CallerID).
		Str("grant_id", grantID).
		Err(err).
		Msg("consent denied")
}
