package consent

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/samruddhi-health/consent-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consent")
	g.POST("/grant", h.Grant, auth.RequireRole("patient"))
	g.POST("/revoke", h.Revoke, auth.RequireRole("patient"))
	g.GET("/status/:id", h.Status)
	g.GET("/grants", h.ListGrants, auth.RequireRole("patient"))
}

type grantBody struct {
	RecipientID         string   `json:"recipientId"`
	RecipientHospitalID string   `json:"recipientHospitalId"`
	Scope               []string `json:"scope"`
	DurationDays        int      `json:"durationDays"`
}

// Grant issues a consent token. The patient id always comes from the
// authenticated identity, never the request body: a patient can only share
// their own record.
func (h *Handler) Grant(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	patientID := ident.PatientID
	if patientID == "" {
		patientID = ident.Subject
	}

	var body grantBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.RecipientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipientId is required")
	}

	result, err := h.svc.Grant(c.Request().Context(), GrantRequest{
		PatientID:           patientID,
		RecipientID:         body.RecipientID,
		RecipientHospitalID: body.RecipientHospitalID,
		Scope:               body.Scope,
		DurationDays:        body.DurationDays,
	})
	if err != nil {
		if errors.Is(err, ErrAuditFailure) {
			return echo.NewHTTPError(http.StatusInternalServerError, "consent could not be recorded")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

type revokeBody struct {
	ConsentID string `json:"consentId"`
}

func (h *Handler) Revoke(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	patientID := ident.PatientID
	if patientID == "" {
		patientID = ident.Subject
	}

	var body revokeBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.ConsentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "consentId is required")
	}

	revoked, err := h.svc.Revoke(c.Request().Context(), patientID, body.ConsentID)
	if err != nil {
		if errors.Is(err, ErrAuditFailure) {
			return echo.NewHTTPError(http.StatusInternalServerError, "revocation could not be recorded")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "revocation failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *Handler) Status(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	callerID := ident.Subject
	if ident.Role == "patient" && ident.PatientID != "" {
		callerID = ident.PatientID
	}

	status, err := h.svc.Status(c.Request().Context(), callerID, ident.Role, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "consent not found")
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) ListGrants(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	patientID := ident.PatientID
	if patientID == "" {
		patientID = ident.Subject
	}

	grants, err := h.svc.ListGrants(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing grants failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"grants": grants})
}

// DenialHTTPError maps a consent denial to its HTTP response. Most denials
// collapse into a generic 403 so callers cannot distinguish why access was
// refused; insufficient scope reports the two scope sets, which the caller
// already knows half of.
func DenialHTTPError(err error) *echo.HTTPError {
	var scopeErr *InsufficientScopeError
	switch {
	case errors.Is(err, ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid consent token")
	case errors.As(err, &scopeErr):
		return echo.NewHTTPError(http.StatusForbidden, map[string]interface{}{
			"error":    "insufficient scope",
			"required": ScopeStrings(scopeErr.Required),
			"granted":  ScopeStrings(scopeErr.Granted),
		})
	case IsDenial(err):
		return echo.NewHTTPError(http.StatusForbidden, "consent denied")
	case errors.Is(err, ErrAuditFailure):
		return echo.NewHTTPError(http.StatusInternalServerError, "access could not be recorded")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
