package ehr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const recordCollection = "ehr_records"

type RepoMongo struct {
	db      *mongo.Database
	timeout time.Duration
	now     func() time.Time
}

func NewRepoMongo(db *mongo.Database, timeout time.Duration) *RepoMongo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RepoMongo{db: db, timeout: timeout, now: time.Now}
}

func (r *RepoMongo) collection() *mongo.Collection {
	return r.db.Collection(recordCollection)
}

func (r *RepoMongo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RepoMongo) Create(ctx context.Context, record *Record) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	now := r.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.MedicalHistory == nil {
		record.MedicalHistory = []MedicalHistoryEntry{}
	}
	if record.Prescriptions == nil {
		record.Prescriptions = []Prescription{}
	}
	if record.TestReports == nil {
		record.TestReports = []TestReport{}
	}
	if record.Devices == nil {
		record.Devices = []Device{}
	}

	if _, err := r.collection().InsertOne(ctx, record); err != nil {
		return fmt.Errorf("insert ehr record: %w", err)
	}
	return nil
}

func (r *RepoMongo) FindByPatientID(ctx context.Context, patientID string) (*Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var record Record
	err := r.collection().FindOne(ctx, bson.M{"patient_id": patientID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ehr record: %w", err)
	}
	return &record, nil
}

func (r *RepoMongo) UpdateProfile(ctx context.Context, patientID string, profile *PatientProfile) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.collection().UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{"$set": bson.M{
			"profile":    profile,
			"updated_at": r.now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *RepoMongo) appendToSection(ctx context.Context, patientID, section string, entry interface{}) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.collection().UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{
			"$push": bson.M{section: entry},
			"$set":  bson.M{"updated_at": r.now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("append to %s: %w", section, err)
	}
	if result.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *RepoMongo) AppendMedicalHistory(ctx context.Context, patientID string, entry *MedicalHistoryEntry) error {
	return r.appendToSection(ctx, patientID, "medical_history", entry)
}

func (r *RepoMongo) AppendPrescription(ctx context.Context, patientID string, rx *Prescription) error {
	if rx.ID == "" {
		rx.ID = uuid.NewString()
	}
	if rx.CreatedAt.IsZero() {
		rx.CreatedAt = r.now().UTC()
	}
	return r.appendToSection(ctx, patientID, "prescriptions", rx)
}

func (r *RepoMongo) AppendTestReport(ctx context.Context, patientID string, report *TestReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = r.now().UTC()
	}
	return r.appendToSection(ctx, patientID, "test_reports", report)
}

// AppendDeviceLog pushes a reading onto the matching device's log array,
// creating the device entry on first sight of its id.
func (r *RepoMongo) AppendDeviceLog(ctx context.Context, patientID string, deviceType DeviceType, deviceID, deviceName string, log *DeviceLog) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.collection().UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{
			"$push": bson.M{"iot_devices.$[dev].logs": log},
			"$set":  bson.M{"updated_at": r.now().UTC()},
		},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"dev.device_id": deviceID, "dev.device_type": deviceType}},
		}),
	)
	if err != nil {
		return fmt.Errorf("append device log: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	if result.ModifiedCount > 0 {
		return nil
	}

	// No array element matched the filter: first reading from this device.
	result, err = r.collection().UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{
			"$push": bson.M{"iot_devices": Device{
				DeviceType: deviceType,
				DeviceID:   deviceID,
				DeviceName: deviceName,
				Logs:       []DeviceLog{*log},
			}},
			"$set": bson.M{"updated_at": r.now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("create device entry: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}
