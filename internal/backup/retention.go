package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aelpxy/stash/pkg/models"
)

// Artifacts removes backup files by the name stored in a BackupRecord.
type Artifacts interface {
	Remove(file string) error
}

// DirArtifacts keeps artifacts as plain files in one directory.
type DirArtifacts struct {
	Dir string
}

// Remove treats an already missing file as removed.
func (d DirArtifacts) Remove(file string) error {
	if file == "" {
		return nil
	}
	err := os.Remove(filepath.Join(d.Dir, filepath.Base(file)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact %s: %w", file, err)
	}
	return nil
}

type PruneResult struct {
	Removed    int
	FreedBytes int64
	Errors     []error
}

// PruneCount drops the oldest records of inst until at most keep remain.
// With reserve set one more is dropped to make room for the backup about to
// be taken. Pruning stops at the first artifact that cannot be removed so
// the history keeps its order.
func PruneCount(inst *models.Instance, keep int, reserve bool, artifacts Artifacts) PruneResult {
	var result PruneResult
	if keep <= 0 {
		return result
	}

	limit := keep
	if reserve {
		limit--
	}

	for len(inst.Backups) > limit {
		oldest := inst.Backups[0]
		if err := artifacts.Remove(oldest.File); err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		inst.Backups = inst.Backups[1:]
		result.Removed++
		result.FreedBytes += oldest.SizeBytes
	}

	return result
}

// GhostExpired reports whether a deleted instance is older than keepDays.
// An instance deleted exactly keepDays ago is kept.
func GhostExpired(inst *models.Instance, keepDays int, now time.Time) bool {
	if keepDays < 0 || inst.DeletedAt == nil {
		return false
	}
	return models.DaysBetween(*inst.DeletedAt, now) > keepDays
}

// PruneGhost removes every artifact of an expired deleted instance. gone is
// true when nothing is left and the instance itself can be dropped.
func PruneGhost(inst *models.Instance, keepDays int, now time.Time, artifacts Artifacts) (result PruneResult, gone bool) {
	if !GhostExpired(inst, keepDays, now) {
		return result, false
	}

	kept := inst.Backups[:0]
	for _, rec := range inst.Backups {
		if err := artifacts.Remove(rec.File); err != nil {
			result.Errors = append(result.Errors, err)
			kept = append(kept, rec)
			continue
		}
		result.Removed++
		result.FreedBytes += rec.SizeBytes
	}
	inst.Backups = kept

	return result, len(kept) == 0
}
