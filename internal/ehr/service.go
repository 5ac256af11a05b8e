package ehr

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/samruddhi-health/consent-api/internal/audit"
	"github.com/samruddhi-health/consent-api/internal/consent"
)

// Actor is the authenticated caller of an EHR operation, with the request
// metadata the audit trail records.
type Actor struct {
	ID         string
	Role       string
	HospitalID string
	IPAddress  string
	UserAgent  string
}

// AccessRequest is one consent-gated EHR operation: who is asking, with
// what token, about which patient.
type AccessRequest struct {
	Actor     Actor
	Token     string
	PatientID string
	// Scope limits a read to the named sections. Empty means everything
	// the grant covers.
	Scope []string
}

// Service mediates every EHR access through the consent validator and the
// audit trail. No handler touches the repository directly.
type Service struct {
	validator *consent.Validator
	repo      Repository
	recorder  audit.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(validator *consent.Validator, repo Repository, recorder audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		validator: validator,
		repo:      repo,
		recorder:  recorder,
		logger:    logger.With().Str("component", "ehr").Logger(),
		now:       time.Now,
	}
}

// authorize runs the consent pipeline for one request and pins the grant to
// the addressed patient. Denials are audited best-effort; the caller is
// denied either way.
func (s *Service) authorize(ctx context.Context, req AccessRequest, required []consent.Scope) (*consent.Authorization, error) {
	auth, err := s.validator.Validate(ctx, consent.AccessRequest{
		Token:            req.Token,
		CallerID:         req.Actor.ID,
		CallerHospitalID: req.Actor.HospitalID,
		RequiredScope:    required,
	})
	if err != nil {
		s.auditDenial(ctx, req, "", err)
		return nil, err
	}

	// The token authorizes exactly one patient's record. Addressing any
	// other patient is indistinguishable from having no consent at all.
	if auth.Grant.PatientID != req.PatientID {
		s.auditDenial(ctx, req, auth.Grant.ID, consent.ErrConsentNotFound)
		return nil, consent.ErrConsentNotFound
	}
	return auth, nil
}

func (s *Service) auditDenial(ctx context.Context, req AccessRequest, grantID string, cause error) {
	event := &audit.Event{
		ActorID:      req.Actor.ID,
		ActorRole:    req.Actor.Role,
		HospitalID:   req.Actor.HospitalID,
		PatientID:    req.PatientID,
		Action:       audit.ActionConsentDenied,
		ResourceType: "ehr_record",
		ResourceID:   req.PatientID,
		GrantID:      grantID,
		Outcome:      audit.OutcomeDenied,
		Detail:       cause.Error(),
		IPAddress:    req.Actor.IPAddress,
		UserAgent:    req.Actor.UserAgent,
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("actor_id", req.Actor.ID).
			Msg("denial audit failed")
	}
}

// ReadRecord returns the consent-filtered view of a patient's record. The
// read is only served once its audit event is durably recorded.
func (s *Service) ReadRecord(ctx context.Context, req AccessRequest) (*ScopedRecord, error) {
	var required []consent.Scope
	if len(req.Scope) > 0 {
		parsed, err := consent.ParseScopes(req.Scope)
		if err != nil {
			return nil, err
		}
		required = parsed
	}

	auth, err := s.authorize(ctx, req, required)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.FindByPatientID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	view := Project(record, auth.EffectiveScope)

	err = s.recorder.Record(ctx, &audit.Event{
		ActorID:      req.Actor.ID,
		ActorRole:    req.Actor.Role,
		HospitalID:   req.Actor.HospitalID,
		PatientID:    req.PatientID,
		Action:       audit.ActionEHRRead,
		ResourceType: "ehr_record",
		ResourceID:   req.PatientID,
		GrantID:      auth.Grant.ID,
		Outcome:      audit.OutcomeSuccess,
		Detail:       "scope: " + strings.Join(consent.ScopeStrings(auth.EffectiveScope), " "),
		IPAddress:    req.Actor.IPAddress,
		UserAgent:    req.Actor.UserAgent,
	})
	if err != nil {
		return nil, consent.ErrAuditFailure
	}
	return view, nil
}

// write runs one consent-gated mutation: authorize for the section's scope,
// apply, then audit with the appended entry. The caller sees ErrAuditFailure
// if the trail could not be written even though the mutation persisted,
// the failure direction that loses availability, not accountability.
func (s *Service) write(ctx context.Context, req AccessRequest, scope consent.Scope, resourceType string, apply func() error, after interface{}) error {
	auth, err := s.authorize(ctx, req, []consent.Scope{scope})
	if err != nil {
		return err
	}

	if err := apply(); err != nil {
		return err
	}

	err = s.recorder.Record(ctx, &audit.Event{
		ActorID:      req.Actor.ID,
		ActorRole:    req.Actor.Role,
		HospitalID:   req.Actor.HospitalID,
		PatientID:    req.PatientID,
		Action:       audit.ActionEHRWrite,
		ResourceType: resourceType,
		ResourceID:   req.PatientID,
		GrantID:      auth.Grant.ID,
		Outcome:      audit.OutcomeSuccess,
		Changes:      &audit.Changes{After: after},
		IPAddress:    req.Actor.IPAddress,
		UserAgent:    req.Actor.UserAgent,
	})
	if err != nil {
		return consent.ErrAuditFailure
	}
	return nil
}

// AppendPrescription adds a prescription under a prescriptions-scoped grant.
func (s *Service) AppendPrescription(ctx context.Context, req AccessRequest, rx *Prescription) error {
	rx.CreatedBy = req.Actor.ID
	return s.write(ctx, req, consent.ScopePrescriptions, "prescription", func() error {
		return s.repo.AppendPrescription(ctx, req.PatientID, rx)
	}, rx)
}

// AppendTestReport adds a test report under a test_reports-scoped grant.
func (s *Service) AppendTestReport(ctx context.Context, req AccessRequest, report *TestReport) error {
	report.CreatedBy = req.Actor.ID
	return s.write(ctx, req, consent.ScopeTestReports, "test_report", func() error {
		return s.repo.AppendTestReport(ctx, req.PatientID, report)
	}, report)
}

// AppendMedicalHistory adds a history entry under a medical_history-scoped
// grant.
func (s *Service) AppendMedicalHistory(ctx context.Context, req AccessRequest, entry *MedicalHistoryEntry) error {
	return s.write(ctx, req, consent.ScopeMedicalHistory, "medical_history", func() error {
		return s.repo.AppendMedicalHistory(ctx, req.PatientID, entry)
	}, entry)
}

// AppendDeviceLog records an IoT reading under an iot_devices-scoped grant.
func (s *Service) AppendDeviceLog(ctx context.Context, req AccessRequest, deviceType DeviceType, deviceID, deviceName string, log *DeviceLog) error {
	if log.Timestamp.IsZero() {
		log.Timestamp = s.now().UTC()
	}
	return s.write(ctx, req, consent.ScopeIoTDevices, "iot_device_log", func() error {
		return s.repo.AppendDeviceLog(ctx, req.PatientID, deviceType, deviceID, deviceName, log)
	}, log)
}

// CreateRecord registers a patient's EHR document. Patients create their
// own record; no consent token is involved.
func (s *Service) CreateRecord(ctx context.Context, actor Actor, record *Record) error {
	if err := s.repo.Create(ctx, record); err != nil {
		return err
	}
	err := s.recorder.Record(ctx, &audit.Event{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		PatientID:    record.PatientID,
		Action:       audit.ActionEHRWrite,
		ResourceType: "ehr_record",
		ResourceID:   record.PatientID,
		Outcome:      audit.OutcomeSuccess,
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	})
	if err != nil {
		return consent.ErrAuditFailure
	}
	return nil
}

// ReadOwnRecord returns the patient's own full record, unfiltered. Only the
// handler's identity check gates it; a patient never needs consent to see
// their own data.
func (s *Service) ReadOwnRecord(ctx context.Context, patientID string) (*Record, error) {
	return s.repo.FindByPatientID(ctx, patientID)
}

// UpdateOwnProfile lets the patient edit their own demographic profile.
func (s *Service) UpdateOwnProfile(ctx context.Context, actor Actor, patientID string, profile *PatientProfile) error {
	before, err := s.repo.FindByPatientID(ctx, patientID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateProfile(ctx, patientID, profile); err != nil {
		return err
	}
	err = s.recorder.Record(ctx, &audit.Event{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		PatientID:    patientID,
		Action:       audit.ActionEHRWrite,
		ResourceType: "patient_profile",
		ResourceID:   patientID,
		Outcome:      audit.OutcomeSuccess,
		Changes:      &audit.Changes{Before: before.Profile, After: profile},
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	})
	if err != nil {
		return consent.ErrAuditFailure
	}
	return nil
}
