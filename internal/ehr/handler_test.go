package ehr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/samruddhi-health/consent-api/internal/platform/auth"
)

func doctorIdent() auth.Identity {
	return auth.Identity{Subject: "doctor-1", Role: "doctor", HospitalID: "hospital-1"}
}

func doHandlerRequest(t *testing.T, h echo.HandlerFunc, ident auth.Identity, method, target, body, token string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(consentTokenHeader, token)
	}
	req = req.WithContext(auth.WithIdentity(context.Background(), ident))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) > 0 {
		names := make([]string, 0, len(params)/2)
		values := make([]string, 0, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestReadRecordHandler(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	grant := f.grant(t, []string{"prescriptions"}, 7)

	rec := doHandlerRequest(t, h.ReadRecord, doctorIdent(),
		http.MethodGet, "/ehr/patients/patient-1?scope=prescriptions", "", grant.Token, "id", "patient-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var view ScopedRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Prescriptions == nil || len(*view.Prescriptions) != 1 || view.Profile != nil {
		t.Errorf("view = %s", rec.Body.String())
	}
}

func TestReadRecordHandlerWithoutToken(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	rec := doHandlerRequest(t, h.ReadRecord, doctorIdent(),
		http.MethodGet, "/ehr/patients/patient-1", "", "", "id", "patient-1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestReadRecordHandlerUnknownScopeParam(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	grant := f.grant(t, []string{"prescriptions"}, 7)

	rec := doHandlerRequest(t, h.ReadRecord, doctorIdent(),
		http.MethodGet, "/ehr/patients/patient-1?scope=billing", "", grant.Token, "id", "patient-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReadRecordHandlerInsufficientScope(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	grant := f.grant(t, []string{"profile"}, 7)

	rec := doHandlerRequest(t, h.ReadRecord, doctorIdent(),
		http.MethodGet, "/ehr/patients/patient-1?scope=test_reports", "", grant.Token, "id", "patient-1")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "insufficient scope") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAppendPrescriptionHandler(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	grant := f.grant(t, []string{"prescriptions"}, 14)

	body := `{"date":"2025-08-30","doctor_name":"Dr. Kulkarni","medications":[{"name":"metformin","dosage":"500mg","frequency":"bd","duration":"90d"}]}`
	rec := doHandlerRequest(t, h.AppendPrescription, doctorIdent(),
		http.MethodPost, "/ehr/patients/patient-1/prescriptions", body, grant.Token, "id", "patient-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var rx Prescription
	if err := json.Unmarshal(rec.Body.Bytes(), &rx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rx.CreatedBy != "doctor-1" {
		t.Errorf("created_by = %s", rx.CreatedBy)
	}
}

func TestAppendDeviceLogHandler(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	grant := f.grant(t, []string{"iot_devices"}, 7)

	body := `{"device_type":"glucose","device_name":"CGM","value":104,"unit":"mg/dL","context":"before_meal"}`
	rec := doHandlerRequest(t, h.AppendDeviceLog, doctorIdent(),
		http.MethodPost, "/ehr/patients/patient-1/iot-devices/glu-01/logs", body, grant.Token,
		"id", "patient-1", "deviceId", "glu-01")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	record := f.repo.records["patient-1"]
	if len(record.Devices) != 2 {
		t.Errorf("devices = %d, want 2", len(record.Devices))
	}
}

func TestCreateRecordHandler(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	ident := auth.Identity{Subject: "user-patient-9", Role: "patient", PatientID: "patient-9"}
	body := `{"profile":{"name":"Ravi","dob":"1990-01-01"}}`
	rec := doHandlerRequest(t, h.CreateRecord, ident, http.MethodPost, "/ehr/records", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if _, ok := f.repo.records["patient-9"]; !ok {
		t.Error("record not created")
	}
}
