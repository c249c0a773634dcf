package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netcontrolapp/netcontrol/internal/model"
)

// NetOperationRepo persists net operations. Check-ins live in the
// check_ins JSON column as an ordered array owned by the row.
type NetOperationRepo struct{ db *sql.DB }

func NewNetOperationRepo(db *sql.DB) *NetOperationRepo { return &NetOperationRepo{db: db} }

// NetOperationFilter narrows List. Nil/empty fields do not restrict.
// From and To are inclusive bounds on start_time.
type NetOperationFilter struct {
	OperatorID *uint64
	From       *time.Time
	To         *time.Time
	Status     string
}

const netColumns = "id, operator_id, operator_callsign, net_name, frequency, notes, start_time, end_time, status, is_scheduled, recurrence, check_ins, created_at, updated_at"

func scanNet(s rowScanner) (model.NetOperation, error) {
	var (
		n        model.NetOperation
		endTime  sql.NullTime
		checkIns []byte
	)
	err := s.Scan(&n.ID, &n.OperatorID, &n.OperatorCallsign, &n.NetName, &n.Frequency, &n.Notes,
		&n.StartTime, &endTime, &n.Status, &n.IsScheduled, &n.Recurrence, &checkIns, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return n, err
	}
	if endTime.Valid {
		t := endTime.Time
		n.EndTime = &t
	}
	n.CheckIns, err = decodeCheckIns(checkIns)
	return n, err
}

func decodeCheckIns(raw []byte) ([]model.CheckIn, error) {
	out := []model.CheckIn{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode check_ins: %w", err)
	}
	return out, nil
}

func encodeCheckIns(list []model.CheckIn) ([]byte, error) {
	if list == nil {
		list = []model.CheckIn{}
	}
	return json.Marshal(list)
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create inserts op and assigns its ID.
func (r *NetOperationRepo) Create(ctx context.Context, op *model.NetOperation) error {
	checkIns, err := encodeCheckIns(op.CheckIns)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO net_operations (operator_id, operator_callsign, net_name, frequency, notes, start_time, end_time, status, is_scheduled, recurrence, check_ins, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		op.OperatorID, op.OperatorCallsign, op.NetName, op.Frequency, op.Notes, op.StartTime, nullableTime(op.EndTime),
		op.Status, op.IsScheduled, op.Recurrence, checkIns, op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert net operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	op.ID = uint64(id)
	if op.CheckIns == nil {
		op.CheckIns = []model.CheckIn{}
	}
	return nil
}

// GetByID fetches a single operation with its check-ins.
func (r *NetOperationRepo) GetByID(ctx context.Context, id uint64) (*model.NetOperation, error) {
	n, err := scanNet(r.db.QueryRowContext(ctx, "SELECT "+netColumns+" FROM net_operations WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns matching operations, newest start time first.
func (r *NetOperationRepo) List(ctx context.Context, f NetOperationFilter) ([]model.NetOperation, error) {
	var (
		where []string
		args  []any
	)
	if f.OperatorID != nil {
		where = append(where, "operator_id=?")
		args = append(args, *f.OperatorID)
	}
	if f.From != nil {
		where = append(where, "start_time>=?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "start_time<=?")
		args = append(args, *f.To)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	q := "SELECT " + netColumns + " FROM net_operations"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_time DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.NetOperation{}
	for rows.Next() {
		n, err := scanNet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateFields writes the editable text fields. Check-ins are untouched so a
// concurrent append is never overwritten.
func (r *NetOperationRepo) UpdateFields(ctx context.Context, op *model.NetOperation) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE net_operations SET net_name=?, frequency=?, notes=?, updated_at=? WHERE id=?",
		op.NetName, op.Frequency, op.Notes, op.UpdatedAt, op.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Start moves a scheduled operation to active. It returns ErrStateChanged
// when the row is no longer scheduled.
func (r *NetOperationRepo) Start(ctx context.Context, id uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE net_operations SET status=?, start_time=?, is_scheduled=0, updated_at=? WHERE id=? AND status=?",
		model.StatusActive, at, at, id, model.StatusScheduled)
	if err != nil {
		return err
	}
	return requireTransition(res)
}

// Complete moves an active operation to completed and stamps end_time.
func (r *NetOperationRepo) Complete(ctx context.Context, id uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE net_operations SET status=?, end_time=?, updated_at=? WHERE id=? AND status=?",
		model.StatusCompleted, at, at, id, model.StatusActive)
	if err != nil {
		return err
	}
	return requireTransition(res)
}

func requireTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStateChanged
	}
	return nil
}

// AppendCheckIn adds ci to the end of the check-in array in a single
// statement, so two concurrent appends both survive.
func (r *NetOperationRepo) AppendCheckIn(ctx context.Context, id uint64, ci model.CheckIn, at time.Time) error {
	doc, err := json.Marshal(ci)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE net_operations SET check_ins=JSON_ARRAY_APPEND(check_ins, '$', CAST(? AS JSON)), updated_at=? WHERE id=?",
		string(doc), at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// MutateCheckIns loads the operation under a row lock, lets fn edit its
// check-in list and writes the list back in the same transaction. If fn
// returns an error nothing is written and that error is returned.
func (r *NetOperationRepo) MutateCheckIns(ctx context.Context, id uint64, at time.Time, fn func(op *model.NetOperation) error) (*model.NetOperation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	n, err := scanNet(tx.QueryRowContext(ctx, "SELECT "+netColumns+" FROM net_operations WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := fn(&n); err != nil {
		return nil, err
	}
	doc, err := encodeCheckIns(n.CheckIns)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE net_operations SET check_ins=?, updated_at=? WHERE id=?", doc, at, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	n.UpdatedAt = at
	return &n, nil
}

// Delete removes the operation and its check-ins.
func (r *NetOperationRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM net_operations WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
