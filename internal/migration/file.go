package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

const (
	upMarker   = "-- ==== UP ===="
	downMarker = "-- ==== DOWN ===="
	noRollback = "(no rollback SQL provided)"

	filePerm = 0o644
	dirPerm  = 0o755
)

// FileStatus describes how a migration's SQL file relates to its ledger record.
type FileStatus string

// File status values reported by VerifyFile.
const (
	FileOK       FileStatus = "ok"
	FileModified FileStatus = "modified"
	FileMissing  FileStatus = "missing"
)

// FileName returns the file name for m: the id followed by the slugified description.
func FileName(m *Migration) string {
	return m.ID + "_" + Slugify(m.Description) + ".sql"
}

// Render produces the SQL file contents for m. The DOWN section is
// commented out so the file can be fed to a SQL client as-is.
func Render(m *Migration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "-- Migration: %s\n", m.Description)
	fmt.Fprintf(&b, "-- ID: %s\n", m.ID)
	fmt.Fprintf(&b, "-- Version: %s\n", m.Version)
	fmt.Fprintf(&b, "-- Type: %s\n", m.Type)
	fmt.Fprintf(&b, "-- Created: %s\n", m.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Checksum: %s\n\n", m.Checksum)

	b.WriteString(upMarker + "\n")
	b.WriteString(strings.TrimRight(m.SQL, "\n") + "\n\n")
	b.WriteString(downMarker + "\n")

	rollback := strings.TrimSpace(m.RollbackSQL)
	if rollback == "" {
		b.WriteString("-- " + noRollback + "\n")
		return b.String()
	}

	for _, line := range strings.Split(rollback, "\n") {
		b.WriteString(strings.TrimRight("-- "+line, " ") + "\n")
	}

	return b.String()
}

// WriteFile atomically writes m's SQL file into dir and returns its path.
func WriteFile(dir string, m *Migration) (string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating migrations directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName(m))

	if err := renameio.WriteFile(path, []byte(Render(m)), filePerm); err != nil {
		return "", fmt.Errorf("writing migration file %s: %w", path, err)
	}

	return path, nil
}

// Sections holds the forward and reverse SQL read back from a migration file.
type Sections struct {
	Up   string
	Down string
}

// ParseFile reads a migration file written by WriteFile.
func ParseFile(path string) (Sections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sections{}, fmt.Errorf("reading migration file %s: %w", path, err)
	}

	return parseSections(string(data), path)
}

func parseSections(content, path string) (Sections, error) {
	lines := strings.Split(content, "\n")

	upStart, downStart := -1, -1

	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case upMarker:
			if upStart < 0 {
				upStart = i
			}
		case downMarker:
			if upStart >= 0 && downStart < 0 {
				downStart = i
			}
		}
	}

	if upStart < 0 {
		return Sections{}, fmt.Errorf("%w: %s has no UP section", ErrMalformedFile, path)
	}

	upEnd := len(lines)
	if downStart >= 0 {
		upEnd = downStart
	}

	s := Sections{Up: strings.TrimSpace(strings.Join(lines[upStart+1:upEnd], "\n"))}

	if downStart >= 0 {
		s.Down = uncomment(lines[downStart+1:])
	}

	return s, nil
}

func uncomment(lines []string) string {
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimPrefix(line, "--")
		line = strings.TrimPrefix(line, " ")
		out = append(out, line)
	}

	down := strings.TrimSpace(strings.Join(out, "\n"))
	if down == noRollback {
		return ""
	}

	return down
}

// VerifyFile compares the UP section of m's file in dir with the ledger SQL.
func VerifyFile(dir string, m *Migration) FileStatus {
	s, err := ParseFile(filepath.Join(dir, FileName(m)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return FileMissing
		}

		return FileModified
	}

	if ComputeChecksum(s.Up) != ComputeChecksum(strings.TrimSpace(m.SQL)) {
		return FileModified
	}

	return FileOK
}
