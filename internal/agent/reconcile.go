package agent

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Decision is the outcome of comparing a generated config against the
// copy already on the persistent volume.
type Decision int

const (
	// NoOp means the existing file already matches.
	NoOp Decision = iota
	// AdoptFresh means no prior file exists and the generated one is adopted.
	AdoptFresh
	// ReplaceWithBackup means the existing file differs; it is preserved
	// as a timestamped backup before being replaced.
	ReplaceWithBackup
)

func (d Decision) String() string {
	switch d {
	case NoOp:
		return "no-op"
	case AdoptFresh:
		return "adopt"
	case ReplaceWithBackup:
		return "replace"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Decide compares the generated document against the existing one.
// It is a pure function; all filesystem effects live in ReconcileFile.
func Decide(existing, generated []byte, exists bool) Decision {
	if !exists {
		return AdoptFresh
	}
	if bytes.Equal(existing, generated) {
		return NoOp
	}
	return ReplaceWithBackup
}

// ReconcileFile applies Decide's outcome to path: it writes content
// atomically when needed and returns the decision plus the backup path
// when one was taken.
func ReconcileFile(path string, content []byte, now time.Time) (Decision, string, error) {
	existing, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return NoOp, "", fmt.Errorf("reading %s: %w", path, err)
	}

	decision := Decide(existing, content, exists)
	switch decision {
	case NoOp:
		return decision, "", nil
	case ReplaceWithBackup:
		backup := fmt.Sprintf("%s.bak-%s", path, now.UTC().Format("20060102-150405"))
		if err := os.WriteFile(backup, existing, 0o600); err != nil {
			return decision, "", fmt.Errorf("backing up %s: %w", path, err)
		}
		if err := atomicWrite(path, content); err != nil {
			return decision, backup, err
		}
		return decision, backup, nil
	default:
		return decision, "", atomicWrite(path, content)
	}
}

// atomicWrite stages content next to path and renames it into place so
// a crash never leaves a half-written config behind.
func atomicWrite(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	staging := path + ".next"
	if err := os.WriteFile(staging, content, 0o600); err != nil {
		return fmt.Errorf("staging %s: %w", path, err)
	}
	if err := os.Rename(staging, path); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}

// ensureSymlink points link at target, replacing a stale link if present.
func ensureSymlink(target, link string) error {
	if current, err := os.Readlink(link); err == nil {
		if current == target {
			return nil
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("removing stale link %s: %w", link, err)
		}
	} else if _, statErr := os.Lstat(link); statErr == nil {
		// A regular file is in the way.
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("removing %s: %w", link, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(link), err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("linking %s -> %s: %w", link, target, err)
	}
	return nil
}
