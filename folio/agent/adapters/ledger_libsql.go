package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
)

// LibSQLLedger persists pending calls in the pending_calls table so a poll can
// resolve a call on any instance sharing the database, including after a restart.
type LibSQLLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLLedger creates a ledger over db.
func NewLibSQLLedger(db *sql.DB) *LibSQLLedger {
	return &LibSQLLedger{db: db, now: time.Now}
}

func (l *LibSQLLedger) Record(ctx context.Context, call ports.PendingCall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = l.now()
	}
	args := string(call.Args)
	if args == "" {
		args = "{}"
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO pending_calls (call_id, tool, args, owner, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		call.CallID, call.Tool, args, call.Owner, string(ports.CallPending), call.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record call %s: %w", call.CallID, err)
	}
	return nil
}

func (l *LibSQLLedger) Resolve(ctx context.Context, callID string, res ports.Resolution) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE pending_calls
		SET status = ?, output = ?, error = ?, resolved_at = ?
		WHERE call_id = ? AND status = ?`,
		string(res.Status), res.Output, res.Error, l.now().UnixMilli(), callID, string(ports.CallPending))
	if err != nil {
		return fmt.Errorf("failed to resolve call %s: %w", callID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve call %s: %w", callID, err)
	}
	if n == 0 {
		return l.ensureExists(ctx, callID)
	}
	return nil
}

func (l *LibSQLLedger) Lookup(ctx context.Context, callID string) (ports.CallRecord, error) {
	var (
		rec                 ports.CallRecord
		args, status        string
		createdAt           int64
		resolvedAt, deliver sql.NullInt64
	)

	err := l.db.QueryRowContext(ctx, `
		SELECT call_id, tool, args, owner, status, output, error, created_at, resolved_at, delivered_at
		FROM pending_calls WHERE call_id = ?`, callID).
		Scan(&rec.CallID, &rec.Tool, &args, &rec.Owner, &status, &rec.Output, &rec.Error, &createdAt, &resolvedAt, &deliver)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.CallRecord{}, ports.ErrCallNotFound
	}
	if err != nil {
		return ports.CallRecord{}, fmt.Errorf("failed to look up call %s: %w", callID, err)
	}

	rec.Args = []byte(args)
	rec.Status = ports.CallStatus(status)
	rec.CreatedAt = time.UnixMilli(createdAt)
	if resolvedAt.Valid {
		rec.ResolvedAt = time.UnixMilli(resolvedAt.Int64)
	}
	rec.Delivered = deliver.Valid
	return rec, nil
}

func (l *LibSQLLedger) Claim(ctx context.Context, callID string) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE pending_calls SET delivered_at = ? WHERE call_id = ? AND delivered_at IS NULL`,
		l.now().UnixMilli(), callID)
	if err != nil {
		return false, fmt.Errorf("failed to claim call %s: %w", callID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim call %s: %w", callID, err)
	}
	if n == 1 {
		return true, nil
	}
	return false, l.ensureExists(ctx, callID)
}

func (l *LibSQLLedger) Forget(ctx context.Context, callID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM pending_calls WHERE call_id = ?`, callID); err != nil {
		return fmt.Errorf("failed to forget call %s: %w", callID, err)
	}
	return nil
}

// Prune deletes resolved calls resolved before cutoff.
func (l *LibSQLLedger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM pending_calls WHERE resolved_at IS NOT NULL AND resolved_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune calls: %w", err)
	}
	return result.RowsAffected()
}

func (l *LibSQLLedger) ensureExists(ctx context.Context, callID string) error {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM pending_calls WHERE call_id = ?`, callID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ErrCallNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up call %s: %w", callID, err)
	}
	return nil
}

var _ ports.Ledger = (*LibSQLLedger)(nil)
