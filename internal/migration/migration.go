// Package migration defines the migration record tracked in the ledger and
// the SQL files written alongside it.
package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aqasim81/pgledger/internal/version"
)

// Type records where a migration came from.
type Type string

// Migration provenance values.
const (
	TypeManual    Type = "manual"
	TypeAutomated Type = "automated"
	TypeExternal  Type = "external"
)

// ParseType converts a user-supplied string into a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeManual, TypeAutomated, TypeExternal:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q (want manual, automated or external)", ErrInvalidMigration, s)
	}
}

// Migration is a single tracked schema change.
type Migration struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Version     string     `json:"version"`
	Description string     `json:"description"`
	Type        Type       `json:"type"`
	SQL         string     `json:"sql"`
	RollbackSQL string     `json:"rollbackSql,omitempty"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"appliedAt,omitempty"`
	Checksum    string     `json:"checksum"`
}

// Params holds the caller-controlled fields of a new migration.
type Params struct {
	ID          string
	Timestamp   time.Time
	Version     string
	Description string
	Type        Type
	SQL         string
	RollbackSQL string
}

// New builds a pending migration from p and computes its checksum.
func New(p Params) (*Migration, error) {
	m := &Migration{
		ID:          p.ID,
		Timestamp:   p.Timestamp.UTC(),
		Version:     p.Version,
		Description: strings.TrimSpace(p.Description),
		Type:        p.Type,
		SQL:         p.SQL,
		RollbackSQL: p.RollbackSQL,
		Checksum:    ComputeChecksum(p.SQL),
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// Validate checks the record's structural invariants.
func (m *Migration) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMigration)
	}

	if m.Description == "" {
		return fmt.Errorf("%w: migration %s: description is required", ErrInvalidMigration, m.ID)
	}

	if strings.TrimSpace(m.SQL) == "" {
		return fmt.Errorf("migration %s: %w", m.ID, ErrEmptySQL)
	}

	if _, err := ParseType(string(m.Type)); err != nil {
		return fmt.Errorf("migration %s: %w", m.ID, err)
	}

	if _, err := version.Parse(m.Version); err != nil {
		return fmt.Errorf("%w: migration %s: %w", ErrInvalidMigration, m.ID, err)
	}

	if m.Applied && m.AppliedAt == nil {
		return fmt.Errorf("%w: migration %s is applied but has no appliedAt", ErrInvalidMigration, m.ID)
	}

	return nil
}

// MarkApplied flips the record to applied at the given instant.
func (m *Migration) MarkApplied(at time.Time) {
	at = at.UTC()
	m.Applied = true
	m.AppliedAt = &at
}

// ChecksumValid reports whether the stored checksum still matches the SQL.
func (m *Migration) ChecksumValid() bool {
	return m.Checksum == ComputeChecksum(m.SQL)
}

// ComputeChecksum returns the SHA-256 hex digest of the given SQL string.
func ComputeChecksum(sql string) string {
	h := sha256.Sum256([]byte(sql))

	return hex.EncodeToString(h[:])
}
