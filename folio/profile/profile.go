// Package profile stores the owner's profile document.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const profileID = "owner"

var (
	ErrNotFound       = errors.New("profile not found")
	ErrInvalidProfile = errors.New("invalid profile document")
	ErrUnknownSection = errors.New("unknown profile section")
)

// Store keeps a single JSON profile document in the profiles table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get returns the stored document or ErrNotFound.
func (s *Store) Get(ctx context.Context) (json.RawMessage, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM profiles WHERE id = ?`, profileID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return json.RawMessage(doc), nil
}

// Put replaces the document. It must be a JSON object with a name.
func (s *Store) Put(ctx context.Context, doc json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if name, _ := fields["name"].(string); strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		profileID, string(doc), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// SeedFile loads the document at path into the store.
func (s *Store) SeedFile(ctx context.Context, path string, logger zerolog.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profile seed: %w", err)
	}
	if err := s.Put(ctx, raw); err != nil {
		return err
	}
	logger.Info().Str("path", path).Msg("profile seeded")
	return nil
}

// Section returns one top-level field of doc. An empty section returns doc.
func Section(doc json.RawMessage, section string) (json.RawMessage, error) {
	section = strings.ToLower(strings.TrimSpace(section))
	if section == "" {
		return doc, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	for key, val := range fields {
		if strings.ToLower(key) == section {
			return val, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSection, section)
}

// Summarize renders a short first-person introduction from doc.
func Summarize(doc json.RawMessage) string {
	var p struct {
		Name     string `json:"name"`
		Headline string `json:"headline"`
		About    string `json:"about"`
		Bio      string `json:"bio"`
		Email    string `json:"email"`
		Skills   any    `json:"skills"`
	}
	if err := json.Unmarshal(doc, &p); err != nil || p.Name == "" {
		return ""
	}

	parts := []string{"I'm " + p.Name + "."}
	if p.Headline != "" {
		parts = append(parts, p.Headline+".")
	}
	if about := firstNonEmpty(p.About, p.Bio); about != "" {
		parts = append(parts, about)
	}
	if p.Email != "" {
		parts = append(parts, "You can reach me at "+p.Email+".")
	}
	if skills := listOf(p.Skills); skills != "" {
		parts = append(parts, "My skills: "+skills+".")
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// listOf accepts skills stored as a list or as a comma separated string.
func listOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	}
	return ""
}
