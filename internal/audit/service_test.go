package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	inserted  []*Event
	insertErr error
}

func (m *mockRepo) Insert(_ context.Context, event *Event) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, event)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	for _, e := range m.inserted {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockRepo) Search(_ context.Context, _ map[string]string, _, _ int) ([]*Event, int, error) {
	return m.inserted, len(m.inserted), nil
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())

	event := &Event{
		ActorID: "doctor-1",
		Action:  ActionEHRRead,
		Outcome: OutcomeSuccess,
	}
	if err := svc.Record(context.Background(), event); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("inserted %d events, want 1", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.ID == uuid.Nil {
		t.Error("event id not assigned")
	}
	if got.Recorded.IsZero() {
		t.Error("recorded timestamp not assigned")
	}
}

func TestRecordPropagatesInsertFailure(t *testing.T) {
	repo := &mockRepo{insertErr: errors.New("connection refused")}
	svc := NewService(repo, zerolog.Nop())

	err := svc.Record(context.Background(), &Event{
		ActorID: "doctor-1",
		Action:  ActionEHRRead,
		Outcome: OutcomeSuccess,
	})
	if err == nil {
		t.Fatal("Record swallowed the insert failure")
	}
}

func TestRecordKeepsExplicitFields(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())

	id := uuid.New()
	event := &Event{
		ID:        id,
		ActorID:   "patient-1",
		Action:    ActionConsentGranted,
		Outcome:   OutcomeSuccess,
		RequestID: "req-42",
	}
	if err := svc.Record(context.Background(), event); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got := repo.inserted[0]
	if got.ID != id {
		t.Errorf("id overwritten: %s", got.ID)
	}
	if got.RequestID != "req-42" {
		t.Errorf("request id overwritten: %s", got.RequestID)
	}
}
