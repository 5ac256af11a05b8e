package consent

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the signed payload of a consent token: a tamper-evident copy
// of the grant's terms at issuance time. sub is the patient, aud the
// recipient staff member, jti the grant id in the consent store. The token
// is a bearer credential and a pointer only; the store record stays
// authoritative for current validity.
type Claims struct {
	jwt.RegisteredClaims
	HospitalID string   `json:"hospital_id"`
	Scope      []string `json:"scope"`
}

// RecipientID returns the staff member the token was issued to.
func (c *Claims) RecipientID() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// IssueRequest carries the patient's authorization decision into the codec.
type IssueRequest struct {
	PatientID           string
	RecipientID         string
	RecipientHospitalID string
	Scope               []Scope
	DurationDays        int
}

// Codec signs and verifies consent tokens.
type Codec interface {
	// Issue validates the request and returns a signed token together
	// with the Grant the caller must persist. It has no side effects
	// beyond id/clock reads.
	Issue(req IssueRequest) (string, *Grant, error)

	// Verify checks signature and expiry and returns the embedded claims.
	// All failures are ErrInvalidToken; passing Verify is necessary but
	// not sufficient for authorization.
	Verify(token string) (*Claims, error)
}

// JWTCodec implements Codec with HMAC-SHA256 JWTs.
type JWTCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTCodec(secret []byte, issuer string) *JWTCodec {
	return &JWTCodec{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}
}

// SetClock overrides the codec's time source. Intended for tests that need
// to mint or verify tokens at a chosen instant.
func (c *JWTCodec) SetClock(now func() time.Time) {
	c.now = now
}

func (c *JWTCodec) Issue(req IssueRequest) (string, *Grant, error) {
	if req.PatientID == "" {
		return "", nil, fmt.Errorf("patient id is required")
	}
	if req.RecipientID == "" {
		return "", nil, fmt.Errorf("recipient id is required")
	}
	if len(req.Scope) == 0 {
		return "", nil, fmt.Errorf("scope must not be empty")
	}
	for _, s := range req.Scope {
		if _, err := ParseScope(string(s)); err != nil {
			return "", nil, err
		}
	}
	if !ValidDurationDays(req.DurationDays) {
		return "", nil, fmt.Errorf("duration must be 7 or 14 days, got %d", req.DurationDays)
	}

	now := c.now().UTC().Truncate(time.Second)
	expires := now.Add(time.Duration(req.DurationDays) * 24 * time.Hour)
	id := uuid.NewString()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   req.PatientID,
			Audience:  jwt.ClaimStrings{req.RecipientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        id,
		},
		HospitalID: req.RecipientHospitalID,
		Scope:      ScopeStrings(req.Scope),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign consent token: %w", err)
	}

	grant := &Grant{
		ID:                  id,
		PatientID:           req.PatientID,
		RecipientID:         req.RecipientID,
		RecipientHospitalID: req.RecipientHospitalID,
		Scope:               append([]Scope(nil), req.Scope...),
		GrantedAt:           now,
		ExpiresAt:           expires,
	}

	return token, grant, nil
}

func (c *JWTCodec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	// Signature mismatch, malformed payload, and expiry all collapse into
	// the same error so a caller cannot tell which check failed.
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
