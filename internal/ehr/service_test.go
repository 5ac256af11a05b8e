package ehr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/samruddhi-health/consent-api/internal/audit"
	"github.com/samruddhi-health/consent-api/internal/consent"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	records map[string]*Record
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]*Record{}}
}

func (m *memRepo) Create(_ context.Context, record *Record) error {
	m.records[record.PatientID] = record
	return nil
}

func (m *memRepo) FindByPatientID(_ context.Context, patientID string) (*Record, error) {
	record, ok := m.records[patientID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return record, nil
}

func (m *memRepo) UpdateProfile(_ context.Context, patientID string, profile *PatientProfile) error {
	record, ok := m.records[patientID]
	if !ok {
		return ErrRecordNotFound
	}
	record.Profile = *profile
	return nil
}

func (m *memRepo) AppendMedicalHistory(_ context.Context, patientID string, entry *MedicalHistoryEntry) error {
	record, ok := m.records[patientID]
	if !ok {
		return ErrRecordNotFound
	}
	record.MedicalHistory = append(record.MedicalHistory, *entry)
	return nil
}

func (m *memRepo) AppendPrescription(_ context.Context, patientID string, rx *Prescription) error {
	record, ok := m.records[patientID]
	if !ok {
		return ErrRecordNotFound
	}
	record.Prescriptions = append(record.Prescriptions, *rx)
	return nil
}

func (m *memRepo) AppendTestReport(_ context.Context, patientID string, report *TestReport) error {
	record, ok := m.records[patientID]
	if !ok {
		return ErrRecordNotFound
	}
	record.TestReports = append(record.TestReports, *report)
	return nil
}

func (m *memRepo) AppendDeviceLog(_ context.Context, patientID string, deviceType DeviceType, deviceID, deviceName string, log *DeviceLog) error {
	record, ok := m.records[patientID]
	if !ok {
		return ErrRecordNotFound
	}
	for i := range record.Devices {
		if record.Devices[i].DeviceID == deviceID && record.Devices[i].DeviceType == deviceType {
			record.Devices[i].Logs = append(record.Devices[i].Logs, *log)
			return nil
		}
	}
	record.Devices = append(record.Devices, Device{
		DeviceType: deviceType,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Logs:       []DeviceLog{*log},
	})
	return nil
}

type mockRecorder struct {
	events []*audit.Event
	fail   bool
}

func (m *mockRecorder) Record(_ context.Context, event *audit.Event) error {
	if m.fail {
		return errors.New("audit store unavailable")
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockRecorder) count(action string) int {
	n := 0
	for _, e := range m.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fixture struct {
	svc        *Service
	consentSvc *consent.Service
	store      *consent.MemoryStore
	repo       *memRepo
	recorder   *mockRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec := consent.NewJWTCodec([]byte(testSecret), "samruddhi-auth")
	store := consent.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	recorder := &mockRecorder{}
	repo := newMemRepo()
	repo.records["patient-1"] = sampleRecord()

	validator := consent.NewValidator(codec, store, zerolog.Nop())
	return &fixture{
		svc:        NewService(validator, repo, recorder, zerolog.Nop()),
		consentSvc: consent.NewService(codec, store, recorder, zerolog.Nop()),
		store:      store,
		repo:       repo,
		recorder:   recorder,
	}
}

func (f *fixture) grant(t *testing.T, scope []string, days int) *consent.GrantResult {
	t.Helper()
	result, err := f.consentSvc.Grant(context.Background(), consent.GrantRequest{
		PatientID:           "patient-1",
		RecipientID:         "doctor-1",
		RecipientHospitalID: "hospital-1",
		Scope:               scope,
		DurationDays:        days,
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	return result
}

func doctorAccess(token, patientID string, scope ...string) AccessRequest {
	return AccessRequest{
		Actor:     Actor{ID: "doctor-1", Role: "doctor", HospitalID: "hospital-1"},
		Token:     token,
		PatientID: patientID,
		Scope:     scope,
	}
}

// A prescriptions-only grant yields a view holding the patient id and
// prescriptions, nothing else.
func TestReadRecordScopedToPrescriptions(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"prescriptions"}, 7)

	view, err := f.svc.ReadRecord(context.Background(), doctorAccess(grant.Token, "patient-1", "prescriptions"))
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if view.PatientID != "patient-1" {
		t.Errorf("patient id = %s", view.PatientID)
	}
	if view.Prescriptions == nil || len(*view.Prescriptions) != 1 {
		t.Errorf("prescriptions = %v, want 1 entry", view.Prescriptions)
	}
	if view.Profile != nil || view.MedicalHistory != nil || view.TestReports != nil || view.Devices != nil {
		t.Error("sections outside the grant were disclosed")
	}

	if f.recorder.count(audit.ActionEHRRead) != 1 {
		t.Error("read not audited")
	}
}

func TestReadRecordDefaultsToGrantedScope(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"profile", "test_reports"}, 7)

	view, err := f.svc.ReadRecord(context.Background(), doctorAccess(grant.Token, "patient-1"))
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if view.Profile == nil || view.TestReports == nil {
		t.Error("granted sections missing")
	}
	if view.Prescriptions != nil || view.MedicalHistory != nil || view.Devices != nil {
		t.Error("ungranted sections disclosed")
	}
}

func TestReadRecordAfterRevocation(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"prescriptions"}, 7)

	if _, err := f.consentSvc.Revoke(context.Background(), "patient-1", grant.Grant.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err := f.svc.ReadRecord(context.Background(), doctorAccess(grant.Token, "patient-1", "prescriptions"))
	if !errors.Is(err, consent.ErrConsentRevoked) {
		t.Fatalf("got %v, want ErrConsentRevoked", err)
	}
	if f.recorder.count(audit.ActionConsentDenied) != 1 {
		t.Error("denial not audited")
	}
}

func TestReadRecordWrongRecipient(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"prescriptions"}, 7)

	req := doctorAccess(grant.Token, "patient-1", "prescriptions")
	req.Actor.ID = "doctor-2"
	_, err := f.svc.ReadRecord(context.Background(), req)
	if !errors.Is(err, consent.ErrRecipientMismatch) {
		t.Fatalf("got %v, want ErrRecipientMismatch", err)
	}
}

func TestReadRecordLeastPrivilege(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"profile"}, 7)

	_, err := f.svc.ReadRecord(context.Background(), doctorAccess(grant.Token, "patient-1", "test_reports"))
	var scopeErr *consent.InsufficientScopeError
	if !errors.As(err, &scopeErr) {
		t.Fatalf("got %v, want InsufficientScopeError", err)
	}
}

func TestReadRecordOtherPatient(t *testing.T) {
	f := newFixture(t)
	f.repo.records["patient-2"] = &Record{PatientID: "patient-2"}
	grant := f.grant(t, []string{"prescriptions"}, 7)

	// Token is for patient-1; addressing patient-2 must deny.
	_, err := f.svc.ReadRecord(context.Background(), doctorAccess(grant.Token, "patient-2", "prescriptions"))
	if !errors.Is(err, consent.ErrConsentNotFound) {
		t.Fatalf("got %v, want ErrConsentNotFound", err)
	}
}

func TestReadRecordFailsWhenAuditDown(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"prescriptions"}, 7)

	f.recorder.fail = true
	_, err := f.svc.ReadRecord(context.Background(), doctorAccess(grant.Token, "patient-1", "prescriptions"))
	if !errors.Is(err, consent.ErrAuditFailure) {
		t.Fatalf("got %v, want ErrAuditFailure", err)
	}
}

func TestAppendPrescription(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"prescriptions"}, 14)

	rx := &Prescription{
		Date:       "2025-08-30",
		DoctorName: "Dr. Kulkarni",
		Medications: []Medication{
			{Name: "metformin", Dosage: "500mg", Frequency: "bd", Duration: "90d"},
		},
	}
	err := f.svc.AppendPrescription(context.Background(), doctorAccess(grant.Token, "patient-1"), rx)
	if err != nil {
		t.Fatalf("AppendPrescription: %v", err)
	}
	if rx.CreatedBy != "doctor-1" {
		t.Errorf("created_by = %s", rx.CreatedBy)
	}

	record := f.repo.records["patient-1"]
	if len(record.Prescriptions) != 2 {
		t.Errorf("prescriptions = %d, want 2", len(record.Prescriptions))
	}
	if f.recorder.count(audit.ActionEHRWrite) != 1 {
		t.Error("write not audited")
	}
}

func TestAppendPrescriptionNeedsScope(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"profile"}, 7)

	err := f.svc.AppendPrescription(context.Background(), doctorAccess(grant.Token, "patient-1"), &Prescription{
		Date:       "2025-08-30",
		DoctorName: "Dr. Kulkarni",
	})
	var scopeErr *consent.InsufficientScopeError
	if !errors.As(err, &scopeErr) {
		t.Fatalf("got %v, want InsufficientScopeError", err)
	}

	if len(f.repo.records["patient-1"].Prescriptions) != 1 {
		t.Error("prescription written despite denial")
	}
}

func TestAppendDeviceLog(t *testing.T) {
	f := newFixture(t)
	grant := f.grant(t, []string{"iot_devices"}, 7)
	ctx := context.Background()

	// Existing device.
	err := f.svc.AppendDeviceLog(ctx, doctorAccess(grant.Token, "patient-1"),
		DeviceHeartRate, "hr-01", "", &DeviceLog{Value: 80, Unit: "bpm"})
	if err != nil {
		t.Fatalf("AppendDeviceLog existing: %v", err)
	}

	// New device id creates an entry.
	err = f.svc.AppendDeviceLog(ctx, doctorAccess(grant.Token, "patient-1"),
		DeviceGlucose, "glu-01", "CGM", &DeviceLog{Value: 104, Unit: "mg/dL", Context: "before_meal"})
	if err != nil {
		t.Fatalf("AppendDeviceLog new: %v", err)
	}

	record := f.repo.records["patient-1"]
	if len(record.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(record.Devices))
	}
	if len(record.Devices[0].Logs) != 2 {
		t.Errorf("heart rate logs = %d, want 2", len(record.Devices[0].Logs))
	}
}

func TestCreateAndReadOwnRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := Actor{ID: "patient-9", Role: "patient"}

	err := f.svc.CreateRecord(ctx, actor, &Record{
		PatientID: "patient-9",
		Profile:   PatientProfile{Name: "Ravi", DOB: "1990-01-01"},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	record, err := f.svc.ReadOwnRecord(ctx, "patient-9")
	if err != nil {
		t.Fatalf("ReadOwnRecord: %v", err)
	}
	if record.Profile.Name != "Ravi" {
		t.Errorf("profile = %+v", record.Profile)
	}
}

func TestExpiredGrantDenied(t *testing.T) {
	f := newFixture(t)

	// Build an already-expired grant directly in the store; the token is
	// minted with a back-dated clock so its signature still verifies
	// against the same secret but its exp is in the past.
	codec := consent.NewJWTCodec([]byte(testSecret), "samruddhi-auth")
	past := time.Now().Add(-8 * 24 * time.Hour)
	codec.SetClock(func() time.Time { return past })
	token, _, err := codec.Issue(consent.IssueRequest{
		PatientID:           "patient-1",
		RecipientID:         "doctor-1",
		RecipientHospitalID: "hospital-1",
		Scope:               []consent.Scope{consent.ScopePrescriptions},
		DurationDays:        7,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = f.svc.ReadRecord(context.Background(), doctorAccess(token, "patient-1", "prescriptions"))
	if !errors.Is(err, consent.ErrInvalidToken) {
		t.Fatalf("got %v, want ErrInvalidToken", err)
	}
}
