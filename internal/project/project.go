// Package project resolves the on-disk layout of a pgledger project from an
// explicit root directory.
package project

import (
	"fmt"
	"path/filepath"
)

const (
	// StateDir holds pgledger's own files, relative to the project root.
	StateDir = ".pgledger"

	manifestFile = "manifest.json"
	snapshotFile = "schema-snapshot.json"
	lockFile     = "manifest.lock"
)

// Context identifies a project by its root directory. Every component
// derives its paths from a Context instead of the process working directory.
type Context struct {
	Root          string
	MigrationsDir string
}

// New resolves root to an absolute path. A relative migrationsDir is taken
// relative to root.
func New(root, migrationsDir string) (Context, error) {
	if root == "" {
		root = "."
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return Context{}, fmt.Errorf("resolving project root %s: %w", root, err)
	}

	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	if !filepath.IsAbs(migrationsDir) {
		migrationsDir = filepath.Join(abs, migrationsDir)
	}

	return Context{Root: abs, MigrationsDir: filepath.Clean(migrationsDir)}, nil
}

// StatePath returns the directory holding the manifest, baseline and lock.
func (c Context) StatePath() string {
	return filepath.Join(c.Root, StateDir)
}

// ManifestPath returns the path of the ledger JSON document.
func (c Context) ManifestPath() string {
	return filepath.Join(c.StatePath(), manifestFile)
}

// SnapshotPath returns the path of the schema baseline JSON document.
func (c Context) SnapshotPath() string {
	return filepath.Join(c.StatePath(), snapshotFile)
}

// LockPath returns the path of the advisory lock file guarding the manifest.
func (c Context) LockPath() string {
	return filepath.Join(c.StatePath(), lockFile)
}
