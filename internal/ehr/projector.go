package ehr

import (
	"github.com/samruddhi-health/consent-api/internal/consent"
)

// Project builds the consent-filtered view of a record. It is pure and
// total: any scope set yields a valid view, and an empty set yields only
// the patient id. Sections never partially appear: a scope either
// unlocks its whole section or the section is absent. Granted sections
// are always non-nil so an empty one still serializes as [], keeping
// "shared but empty" distinguishable from "not shared" on the wire.
func Project(record *Record, scope []consent.Scope) *ScopedRecord {
	view := &ScopedRecord{
		PatientID: record.PatientID,
		Scope:     consent.ScopeStrings(scope),
	}

	for _, s := range scope {
		switch s {
		case consent.ScopeProfile:
			profile := record.Profile
			view.Profile = &profile
		case consent.ScopeMedicalHistory:
			view.MedicalHistory = copySection(record.MedicalHistory)
		case consent.ScopePrescriptions:
			view.Prescriptions = copySection(record.Prescriptions)
		case consent.ScopeTestReports:
			view.TestReports = copySection(record.TestReports)
		case consent.ScopeIoTDevices:
			view.Devices = copySection(record.Devices)
		}
	}
	return view
}

// copySection detaches a section from the record. The result always points
// at a non-nil slice so the section marshals as [] rather than null.
func copySection[T any](src []T) *[]T {
	out := make([]T, len(src))
	copy(out, src)
	return &out
}
