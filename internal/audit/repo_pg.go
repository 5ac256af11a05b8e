package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const eventCols = `id, actor_id, actor_role, hospital_id, patient_id,
	action, resource_type, resource_id, grant_id, outcome, detail,
	changes, request_id, ip_address, user_agent, recorded`

func (r *RepoPG) Insert(ctx context.Context, event *Event) error {
	var changes []byte
	if event.Changes != nil {
		var err error
		changes, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
	}

	q := fmt.Sprintf(`INSERT INTO audit_events (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`, eventCols)
	_, err := r.pool.Exec(ctx, q,
		event.ID, event.ActorID, event.ActorRole, event.HospitalID, event.PatientID,
		event.Action, event.ResourceType, event.ResourceID, event.GrantID, event.Outcome, event.Detail,
		changes, event.RequestID, event.IPAddress, event.UserAgent, event.Recorded,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var changes []byte
	err := row.Scan(
		&e.ID, &e.ActorID, &e.ActorRole, &e.HospitalID, &e.PatientID,
		&e.Action, &e.ResourceType, &e.ResourceID, &e.GrantID, &e.Outcome, &e.Detail,
		&changes, &e.RequestID, &e.IPAddress, &e.UserAgent, &e.Recorded,
	)
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		var c Changes
		if err := json.Unmarshal(changes, &c); err != nil {
			return nil, fmt.Errorf("unmarshal changes: %w", err)
		}
		e.Changes = &c
	}
	return &e, nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_events WHERE id = $1", eventCols)
	return scanEvent(r.pool.QueryRow(ctx, q, id))
}

func (r *RepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Event, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	for param, col := range map[string]string{
		"actor":    "actor_id",
		"patient":  "patient_id",
		"hospital": "hospital_id",
		"action":   "action",
		"outcome":  "outcome",
		"grant":    "grant_id",
		"resource": "resource_type",
	} {
		if v, ok := params[param]; ok {
			where = append(where, fmt.Sprintf("%s = $%d", col, idx))
			args = append(args, v)
			idx++
		}
	}
	if v, ok := params["since"]; ok {
		where = append(where, fmt.Sprintf("recorded >= $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["until"]; ok {
		where = append(where, fmt.Sprintf("recorded < $%d", idx))
		args = append(args, v)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_events %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_events %s ORDER BY recorded DESC LIMIT $%d OFFSET $%d",
		eventCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
