package ehr

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned when no EHR document exists for a patient.
var ErrRecordNotFound = errors.New("ehr record not found")

type Repository interface {
	Create(ctx context.Context, record *Record) error
	FindByPatientID(ctx context.Context, patientID string) (*Record, error)
	UpdateProfile(ctx context.Context, patientID string, profile *PatientProfile) error
	AppendMedicalHistory(ctx context.Context, patientID string, entry *MedicalHistoryEntry) error
	AppendPrescription(ctx context.Context, patientID string, rx *Prescription) error
	AppendTestReport(ctx context.Context, patientID string, report *TestReport) error
	AppendDeviceLog(ctx context.Context, patientID string, deviceType DeviceType, deviceID, deviceName string, log *DeviceLog) error
}
