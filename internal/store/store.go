package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/aelpxy/stash/pkg/models"
)

const (
	JSONFileName   = "instance_info.json"
	SQLiteFileName = "instance_info.db"
)

var ErrCorrupt = errors.New("instance store is corrupt")

// Repository persists the full instance table. Save replaces the stored
// table atomically: after a crash either the old or the new table is read.
type Repository interface {
	Load(ctx context.Context) ([]models.Instance, error)
	Save(ctx context.Context, instances []models.Instance) error
	Location() string
	Close() error
}

// Open returns the repository for format inside dir.
func Open(format, dir string) (Repository, error) {
	switch format {
	case "", models.StoreFormatJSON:
		return NewJSONStore(filepath.Join(dir, JSONFileName)), nil
	case models.StoreFormatSQLite:
		return NewSQLiteStore(filepath.Join(dir, SQLiteFileName))
	default:
		return nil, fmt.Errorf("unsupported instance store format: %s", format)
	}
}

// Check verifies the invariants of a loaded table.
func Check(instances []models.Instance) error {
	ids := make(map[string]bool, len(instances))
	live := make(map[string]bool, len(instances))

	for i := range instances {
		inst := &instances[i]

		if inst.ID == "" || inst.ContainerID == "" || inst.Path == "" {
			return fmt.Errorf("%w: row %d is missing id, container or path", ErrCorrupt, i+1)
		}
		if ids[inst.ID] {
			return fmt.Errorf("%w: duplicate instance id %s", ErrCorrupt, inst.ID)
		}
		ids[inst.ID] = true

		if !inst.IsDeleted() {
			key := inst.ContainerID + "\x00" + inst.Path
			if live[key] {
				return fmt.Errorf("%w: %s is tracked twice", ErrCorrupt, inst)
			}
			live[key] = true
		}

		for j := 1; j < len(inst.Backups); j++ {
			if !inst.Backups[j-1].TakenAt.Before(inst.Backups[j].TakenAt) {
				return fmt.Errorf("%w: history of %s is not ordered by day", ErrCorrupt, inst)
			}
		}
	}

	return nil
}
