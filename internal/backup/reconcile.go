package backup

import (
	"sort"
	"time"

	"github.com/aelpxy/stash/pkg/models"
)

type ReconcileResult struct {
	Created []*models.Instance
	Deleted []*models.Instance
}

// configMatches reports whether a container_paths key names c, either by
// name or by id (compared on the short id).
func configMatches(key string, c models.Container) bool {
	if key == "" {
		return false
	}
	return key == c.Name || models.ShortID(key) == c.ShortID()
}

// DesiredPaths returns the paths to track for c. Duplicates are dropped and
// the configured order is kept.
func DesiredPaths(c models.Container, containerPaths map[string][]string, backupByDefault bool) []string {
	keys := make([]string, 0, len(containerPaths))
	for key := range containerPaths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var paths []string
	seen := make(map[string]bool)
	matched := false
	for _, key := range keys {
		if !configMatches(key, c) {
			continue
		}
		matched = true
		for _, p := range containerPaths[key] {
			if seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if !matched && backupByDefault {
		return []string{models.RootPath}
	}
	return paths
}

// Reconcile brings the instance table in line with the runtime listing and
// the configuration. Pairs that are no longer desired are marked deleted,
// new pairs get a fresh instance. A deleted instance is never revived.
func Reconcile(table []*models.Instance, containers []models.Container, cfg models.Config, now time.Time, newID func() string) ([]*models.Instance, ReconcileResult) {
	var result ReconcileResult

	type pair struct{ containerID, path string }
	live := make(map[pair]*models.Instance)
	for _, inst := range table {
		if !inst.IsDeleted() {
			live[pair{inst.ContainerID, inst.Path}] = inst
		}
	}

	desired := make(map[pair]bool)
	for _, c := range containers {
		for _, path := range DesiredPaths(c, cfg.ContainerPaths, cfg.BackupByDefault) {
			key := pair{c.ID, path}
			desired[key] = true

			if inst, ok := live[key]; ok {
				inst.ContainerName = c.Name
				continue
			}

			inst := &models.Instance{
				ID:            newID(),
				ContainerID:   c.ID,
				ContainerName: c.Name,
				Path:          path,
				CreatedAt:     now,
				Backups:       []models.BackupRecord{},
			}
			live[key] = inst
			table = append(table, inst)
			result.Created = append(result.Created, inst)
		}
	}

	for _, inst := range table {
		if inst.IsDeleted() || desired[pair{inst.ContainerID, inst.Path}] {
			continue
		}
		inst.MarkDeleted(now)
		result.Deleted = append(result.Deleted, inst)
	}

	return table, result
}

// LiveByContainer groups the live instances of each listed container, in
// listing order.
func LiveByContainer(table []*models.Instance, containers []models.Container) map[string][]*models.Instance {
	listed := make(map[string]bool, len(containers))
	for _, c := range containers {
		listed[c.ID] = true
	}

	groups := make(map[string][]*models.Instance)
	for _, inst := range table {
		if inst.IsDeleted() || !listed[inst.ContainerID] {
			continue
		}
		groups[inst.ContainerID] = append(groups[inst.ContainerID], inst)
	}
	return groups
}
