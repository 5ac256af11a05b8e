package ehr

import "time"

// Address is the patient's postal address.
type Address struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	Pincode string `bson:"pincode,omitempty" json:"pincode,omitempty"`
}

type EmergencyContact struct {
	Name     string `bson:"name" json:"name"`
	Relation string `bson:"relation" json:"relation"`
	Phone    string `bson:"phone" json:"phone"`
}

type PatientProfile struct {
	Name             string            `bson:"name" json:"name"`
	DOB              string            `bson:"dob" json:"dob"`
	BloodGroup       string            `bson:"blood_group,omitempty" json:"blood_group,omitempty"`
	Phone            string            `bson:"phone,omitempty" json:"phone,omitempty"`
	Address          *Address          `bson:"address,omitempty" json:"address,omitempty"`
	EmergencyContact *EmergencyContact `bson:"emergency_contact,omitempty" json:"emergency_contact,omitempty"`
}

type MedicalHistoryEntry struct {
	Date         string `bson:"date" json:"date"`
	Condition    string `bson:"condition" json:"condition"`
	Treatment    string `bson:"treatment,omitempty" json:"treatment,omitempty"`
	Notes        string `bson:"notes,omitempty" json:"notes,omitempty"`
	DoctorName   string `bson:"doctor_name,omitempty" json:"doctor_name,omitempty"`
	HospitalName string `bson:"hospital_name,omitempty" json:"hospital_name,omitempty"`
}

type Medication struct {
	Name      string `bson:"name" json:"name"`
	Dosage    string `bson:"dosage" json:"dosage"`
	Frequency string `bson:"frequency" json:"frequency"`
	Duration  string `bson:"duration" json:"duration"`
	Notes     string `bson:"notes,omitempty" json:"notes,omitempty"`
}

type Prescription struct {
	ID           string       `bson:"id" json:"id"`
	Date         string       `bson:"date" json:"date"`
	DoctorName   string       `bson:"doctor_name" json:"doctor_name"`
	HospitalName string       `bson:"hospital_name,omitempty" json:"hospital_name,omitempty"`
	Medications  []Medication `bson:"medications" json:"medications"`
	Diagnosis    string       `bson:"diagnosis,omitempty" json:"diagnosis,omitempty"`
	PDFURL       string       `bson:"pdf_url,omitempty" json:"pdf_url,omitempty"`
	CreatedBy    string       `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt    time.Time    `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

type TestReport struct {
	ID            string            `bson:"id" json:"id"`
	TestName      string            `bson:"test_name" json:"test_name"`
	Date          string            `bson:"date" json:"date"`
	LabName       string            `bson:"lab_name,omitempty" json:"lab_name,omitempty"`
	DoctorName    string            `bson:"doctor_name,omitempty" json:"doctor_name,omitempty"`
	PDFURL        string            `bson:"pdf_url,omitempty" json:"pdf_url,omitempty"`
	ParsedResults map[string]string `bson:"parsed_results,omitempty" json:"parsed_results,omitempty"`
	Notes         string            `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy     string            `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time         `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// DeviceType names a supported IoT monitoring device category.
type DeviceType string

const (
	DeviceHeartRate     DeviceType = "heart_rate"
	DeviceGlucose       DeviceType = "glucose"
	DeviceBloodPressure DeviceType = "blood_pressure"
	DeviceSpO2          DeviceType = "spo2"
	DeviceTemperature   DeviceType = "temperature"
)

// ValidDeviceType reports whether t is a known device category.
func ValidDeviceType(t DeviceType) bool {
	switch t {
	case DeviceHeartRate, DeviceGlucose, DeviceBloodPressure, DeviceSpO2, DeviceTemperature:
		return true
	}
	return false
}

type DeviceLog struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Value     float64   `bson:"value" json:"value"`
	Unit      string    `bson:"unit" json:"unit"`
	Context   string    `bson:"context,omitempty" json:"context,omitempty"`
}

type Device struct {
	DeviceType DeviceType  `bson:"device_type" json:"device_type"`
	DeviceID   string      `bson:"device_id" json:"device_id"`
	DeviceName string      `bson:"device_name,omitempty" json:"device_name,omitempty"`
	Logs       []DeviceLog `bson:"logs" json:"logs"`
}

// Record is a patient's full electronic health record, one document per
// patient in the ehr_records collection.
type Record struct {
	PatientID      string                `bson:"patient_id" json:"patient_id"`
	ABHAID         string                `bson:"abha_id,omitempty" json:"abha_id,omitempty"`
	Profile        PatientProfile        `bson:"profile" json:"profile"`
	MedicalHistory []MedicalHistoryEntry `bson:"medical_history" json:"medical_history"`
	Prescriptions  []Prescription        `bson:"prescriptions" json:"prescriptions"`
	TestReports    []TestReport          `bson:"test_reports" json:"test_reports"`
	Devices        []Device              `bson:"iot_devices" json:"iot_devices"`
	CreatedAt      time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time             `bson:"updated_at" json:"updated_at"`
}

// ScopedRecord is the consent-filtered view of a Record. Sections outside
// the authorized scope are absent from the JSON entirely, while a granted
// section always appears, as [] when it holds nothing. The pointers carry
// that distinction: nil means unshared, non-nil means granted.
type ScopedRecord struct {
	PatientID      string                 `json:"patient_id"`
	Profile        *PatientProfile        `json:"profile,omitempty"`
	MedicalHistory *[]MedicalHistoryEntry `json:"medical_history,omitempty"`
	Prescriptions  *[]Prescription        `json:"prescriptions,omitempty"`
	TestReports    *[]TestReport          `json:"test_reports,omitempty"`
	Devices        *[]Device              `json:"iot_devices,omitempty"`
	Scope          []string               `json:"scope"`
}
