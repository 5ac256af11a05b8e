package ehr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/samruddhi-health/consent-api/internal/consent"
	"github.com/samruddhi-health/consent-api/internal/platform/auth"
)

// consentTokenHeader carries the patient-issued consent token on every
// consent-gated EHR request, separate from the caller's own bearer auth.
const consentTokenHeader = "X-Consent-Token"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/ehr")

	// Patient self-service.
	self := g.Group("/records", auth.RequireRole("patient"))
	self.POST("", h.CreateRecord)
	self.GET("/me", h.ReadOwnRecord)
	self.PUT("/me/profile", h.UpdateOwnProfile)

	// Consent-gated staff access.
	staff := g.Group("/patients", auth.RequireRole("doctor", "nurse", "hospital"))
	staff.GET("/:id", h.ReadRecord)
	staff.POST("/:id/prescriptions", h.AppendPrescription)
	staff.POST("/:id/test-reports", h.AppendTestReport)
	staff.POST("/:id/medical-history", h.AppendMedicalHistory)
	staff.POST("/:id/iot-devices/:deviceId/logs", h.AppendDeviceLog)
}

func (h *Handler) accessRequest(c echo.Context) AccessRequest {
	ident := auth.IdentityFromContext(c.Request().Context())
	return AccessRequest{
		Actor: Actor{
			ID:         ident.Subject,
			Role:       ident.Role,
			HospitalID: ident.HospitalID,
			IPAddress:  c.RealIP(),
			UserAgent:  c.Request().UserAgent(),
		},
		Token:     c.Request().Header.Get(consentTokenHeader),
		PatientID: c.Param("id"),
	}
}

func (h *Handler) actor(c echo.Context) (Actor, string) {
	ident := auth.IdentityFromContext(c.Request().Context())
	patientID := ident.PatientID
	if patientID == "" {
		patientID = ident.Subject
	}
	return Actor{
		ID:        patientID,
		Role:      ident.Role,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}, patientID
}

func writeError(err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if consent.IsDenial(err) || errors.Is(err, consent.ErrAuditFailure) {
		return consent.DenialHTTPError(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (h *Handler) ReadRecord(c echo.Context) error {
	req := h.accessRequest(c)
	if raw := c.QueryParam("scope"); raw != "" {
		tags := strings.Split(raw, ",")
		if _, err := consent.ParseScopes(tags); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Scope = tags
	}

	view, err := h.svc.ReadRecord(c.Request().Context(), req)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) AppendPrescription(c echo.Context) error {
	var rx Prescription
	if err := c.Bind(&rx); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if rx.Date == "" || rx.DoctorName == "" || len(rx.Medications) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "date, doctor_name and medications are required")
	}

	if err := h.svc.AppendPrescription(c.Request().Context(), h.accessRequest(c), &rx); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) AppendTestReport(c echo.Context) error {
	var report TestReport
	if err := c.Bind(&report); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if report.TestName == "" || report.Date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test_name and date are required")
	}

	if err := h.svc.AppendTestReport(c.Request().Context(), h.accessRequest(c), &report); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, report)
}

func (h *Handler) AppendMedicalHistory(c echo.Context) error {
	var entry MedicalHistoryEntry
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if entry.Date == "" || entry.Condition == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date and condition are required")
	}

	if err := h.svc.AppendMedicalHistory(c.Request().Context(), h.accessRequest(c), &entry); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

type deviceLogBody struct {
	DeviceType DeviceType `json:"device_type"`
	DeviceName string     `json:"device_name"`
	DeviceLog
}

func (h *Handler) AppendDeviceLog(c echo.Context) error {
	var body deviceLogBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !ValidDeviceType(body.DeviceType) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown device type")
	}
	if body.Unit == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "unit is required")
	}

	log := body.DeviceLog
	err := h.svc.AppendDeviceLog(c.Request().Context(), h.accessRequest(c),
		body.DeviceType, c.Param("deviceId"), body.DeviceName, &log)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, log)
}

type createRecordBody struct {
	ABHAID  string         `json:"abha_id"`
	Profile PatientProfile `json:"profile"`
}

func (h *Handler) CreateRecord(c echo.Context) error {
	actor, patientID := h.actor(c)

	var body createRecordBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.Profile.Name == "" || body.Profile.DOB == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "profile name and dob are required")
	}

	record := &Record{
		PatientID: patientID,
		ABHAID:    body.ABHAID,
		Profile:   body.Profile,
	}
	if err := h.svc.CreateRecord(c.Request().Context(), actor, record); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (h *Handler) ReadOwnRecord(c echo.Context) error {
	_, patientID := h.actor(c)

	record, err := h.svc.ReadOwnRecord(c.Request().Context(), patientID)
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) UpdateOwnProfile(c echo.Context) error {
	actor, patientID := h.actor(c)

	var profile PatientProfile
	if err := c.Bind(&profile); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if profile.Name == "" || profile.DOB == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and dob are required")
	}

	if err := h.svc.UpdateOwnProfile(c.Request().Context(), actor, patientID, &profile); err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, profile)
}
