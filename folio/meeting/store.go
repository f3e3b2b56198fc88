package meeting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store persists meetings in the meetings table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const meetingColumns = `id, title, datetime, participants, requested_by, confirmed_by, status, created_at, updated_at`

func (s *Store) Create(ctx context.Context, m Meeting) error {
	participants, err := json.Marshal(nonNil(m.Participants))
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meetings (`+meetingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Datetime.UTC().Format(time.RFC3339), string(participants), m.RequestedBy,
		m.ConfirmedBy, string(m.Status), m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

// List returns all meetings ordered by datetime.
func (s *Store) List(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings ORDER BY datetime, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	meetings := []Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meetings: %w", err)
	}
	return meetings, nil
}

// UpdateStatus sets the status and confirming party.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, confirmedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET status = ?, confirmed_by = ?, updated_at = ? WHERE id = ?`,
		string(status), confirmedBy, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (*Meeting, error) {
	var (
		m                  Meeting
		datetime, people   string
		status             string
		createdAt, updated int64
	)
	err := row.Scan(&m.ID, &m.Title, &datetime, &people, &m.RequestedBy, &m.ConfirmedBy, &status, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan meeting: %w", err)
	}

	if m.Datetime, err = time.Parse(time.RFC3339, datetime); err != nil {
		return nil, fmt.Errorf("failed to parse meeting datetime: %w", err)
	}
	if err := json.Unmarshal([]byte(people), &m.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	m.Status = Status(status)
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updated).UTC()
	return &m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
