package backup

import (
	"time"

	"github.com/aelpxy/stash/pkg/models"
)

// EligibleSince returns the earliest last backup of a container's instances.
// An instance that was never backed up counts from its creation. fresh is
// true when the group has no backup at all or gained an instance at now.
func EligibleSince(instances []*models.Instance, now time.Time) (since time.Time, fresh bool) {
	backedUp := false
	for i, inst := range instances {
		at := inst.CreatedAt
		if inst.LastBackupAt != nil {
			at = *inst.LastBackupAt
			backedUp = true
		} else if inst.CreatedAt.Equal(now) {
			fresh = true
		}
		if i == 0 || at.Before(since) {
			since = at
		}
	}
	return since, fresh || !backedUp
}

// IsDue decides for a whole container. Every live instance of a due
// container is backed up in the same pass.
func IsDue(act Activity, instances []*models.Instance, minInterval int, now time.Time) bool {
	if len(instances) == 0 {
		return false
	}

	since, fresh := EligibleSince(instances, now)
	if fresh {
		// interval only throttles repeat backups
		return act.HasRun()
	}

	if !act.RanSince(since) {
		return false
	}

	return models.DaysBetween(since, now) >= minInterval
}
