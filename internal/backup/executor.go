package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/klauspost/compress/gzip"
)

const (
	ArtifactExt       = ".tar.gz"
	artifactDayLayout = "060102"
)

// ArtifactName is <short id>-<name>-<path>-<instance id>-<yymmdd>.tar.gz.
// The same instance backed up twice on one day gets the same name.
func ArtifactName(inst *models.Instance, day time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s%s",
		models.ShortID(inst.ContainerID),
		utils.SanitizeName(inst.ContainerName),
		utils.SanitizeName(inst.Path),
		utils.SanitizeName(inst.ID),
		models.Day(day).Format(artifactDayLayout),
		ArtifactExt,
	)
}

type Executor struct {
	runtime Runtime
	dir     string
}

func NewExecutor(runtime Runtime, dir string) *Executor {
	return &Executor{runtime: runtime, dir: dir}
}

// Backup copies the instance path out of its container into a compressed
// artifact. The artifact only appears under its final name once fully
// written.
func (e *Executor) Backup(ctx context.Context, inst *models.Instance, now time.Time) (models.BackupRecord, error) {
	rc, err := e.runtime.CopyPath(ctx, inst.ContainerID, inst.Path)
	if err != nil {
		return models.BackupRecord{}, err
	}
	defer rc.Close()

	name := ArtifactName(inst, now)
	size, err := e.write(rc, name)
	if err != nil {
		return models.BackupRecord{}, err
	}

	return models.BackupRecord{
		TakenAt:   models.Day(now),
		SizeBytes: size,
		File:      name,
	}, nil
}

func (e *Executor) write(src io.Reader, name string) (int64, error) {
	tmpFile, err := os.CreateTemp(e.dir, ".tmp-*"+ArtifactExt)
	if err != nil {
		return 0, fmt.Errorf("failed to create artifact: %w", err)
	}
	tmpName := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			tmpFile.Close()
			os.Remove(tmpName)
		}
	}()

	gz := gzip.NewWriter(tmpFile)
	if _, err := io.Copy(gz, src); err != nil {
		return 0, fmt.Errorf("failed to copy container data: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("failed to compress artifact: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync artifact: %w", err)
	}

	info, err := tmpFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat artifact: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(e.dir, name)); err != nil {
		return 0, fmt.Errorf("failed to move artifact into place: %w", err)
	}
	committed = true

	return info.Size(), nil
}
