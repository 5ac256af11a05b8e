package audit

import "context"

// Recorder appends events to the audit trail. A non-nil error means the
// event was NOT durably recorded; callers must treat the triggering
// operation as failed rather than proceed unaudited.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}
