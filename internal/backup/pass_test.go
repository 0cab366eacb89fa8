package backup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aelpxy/stash/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var web = models.Container{ID: "abc123", Name: "web"}

func TestPassBacksUpEveryConfiguredPath(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc"}}

	summary := h.run(t)

	instances := h.load(t)
	require.Len(t, instances, 2)
	for _, inst := range instances {
		require.Len(t, inst.Backups, 1, inst.Path)
		assert.Equal(t, models.Day(testNow), inst.Backups[0].TakenAt)
		assert.Positive(t, inst.Backups[0].SizeBytes)
		require.NotNil(t, inst.LastBackupAt)
		assert.True(t, inst.LastBackupAt.Equal(testNow))
		assert.True(t, h.artifactExists(inst.Backups[0].File))
	}
	assert.Equal(t, 2, summary.BackupsCreated)
	assert.Equal(t, 2, summary.NewInstances)
	assert.Equal(t, 1, summary.DueContainers)
	assert.Empty(t, summary.Failures)
	assert.Len(t, h.notifier.summaries, 1)
}

func TestPassMarksRemovedPathDeleted(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc"}}
	h.run(t)

	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	h.clock.Advance(days(1))
	summary := h.run(t)

	etc := h.find(t, "/etc", false)
	require.NotNil(t, etc)
	require.NotNil(t, etc.DeletedAt)
	assert.True(t, etc.DeletedAt.Equal(testNow.Add(days(1))))
	assert.Len(t, etc.Backups, 1, "a deleted instance keeps its history")

	data := h.find(t, "/data", true)
	require.NotNil(t, data)
	assert.Nil(t, data.DeletedAt)
	assert.Len(t, data.Backups, 2)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 1, summary.BackupsCreated)
}

func TestPassReaddedPathGetsNewInstance(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc"}}
	h.run(t)

	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	h.clock.Advance(days(1))
	h.run(t)

	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc"}}
	h.clock.Advance(days(1))
	h.run(t)

	var etc []models.Instance
	for _, inst := range h.load(t) {
		if inst.Path == "/etc" {
			etc = append(etc, inst)
		}
	}
	require.Len(t, etc, 2)
	assert.NotEqual(t, etc[0].ID, etc[1].ID)
	assert.True(t, etc[0].IsDeleted())
	assert.False(t, etc[1].IsDeleted())
	assert.Len(t, etc[1].Backups, 1)
}

func TestPassMinimumInterval(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.MinBackupInterval = 3
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc"}}

	first := h.run(t)
	assert.Equal(t, 2, first.BackupsCreated, "first backups ignore the interval")

	h.clock.Advance(days(2))
	summary := h.run(t)
	assert.Zero(t, summary.BackupsCreated)

	h.clock.Advance(days(1))
	summary = h.run(t)
	assert.Equal(t, 2, summary.BackupsCreated)
	for _, inst := range h.load(t) {
		assert.Len(t, inst.Backups, 2, inst.Path)
	}
}

func TestPassStoppedContainer(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	h.run(t)

	// stopped before the last backup, nothing changed since
	h.rt.states[web.ID] = models.ContainerState{
		StartedAt:  testNow.Add(-days(10)),
		FinishedAt: testNow.Add(-days(1)),
	}
	h.clock.Advance(days(2))
	summary := h.run(t)
	assert.Zero(t, summary.BackupsCreated)

	// ran for a while after the last backup
	h.rt.states[web.ID] = models.ContainerState{
		StartedAt:  testNow.Add(days(1)),
		FinishedAt: testNow.Add(days(2)),
	}
	h.clock.Advance(days(1))
	summary = h.run(t)
	assert.Equal(t, 1, summary.BackupsCreated)

	data := h.find(t, "/data", true)
	require.NotNil(t, data.LastAliveAt)
	assert.True(t, data.LastAliveAt.Equal(testNow.Add(days(2))))
}

func TestPassFailingSiblingKeepsActivityGate(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.MinBackupInterval = 7
	h.cfg.BackupKeepNum = 2
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/missing"}}
	h.rt.copyErr["abc123:/missing"] = errors.New("no such path")
	h.rt.states[web.ID] = models.ContainerState{
		StartedAt:  testNow.Add(-days(30)),
		FinishedAt: testNow.Add(-days(20)),
	}

	first := h.run(t)
	assert.Equal(t, 1, first.BackupsCreated, "new instances are due once the container has run")

	for day := 1; day <= 3; day++ {
		h.clock.Advance(days(1))
		summary := h.run(t)
		assert.Zero(t, summary.BackupsCreated, "day %d", day)
		assert.Zero(t, summary.RecordsPruned, "day %d", day)
	}

	data := h.find(t, "/data", true)
	require.Len(t, data.Backups, 1)
	assert.Equal(t, models.Day(testNow), data.Backups[0].TakenAt)
	assert.Empty(t, h.find(t, "/missing", true).Backups)
}

func TestPassFailingSiblingWaitsForInterval(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.MinBackupInterval = 3
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/missing"}}
	h.rt.copyErr["abc123:/missing"] = errors.New("no such path")

	h.run(t)
	h.clock.Advance(days(2))
	assert.Zero(t, h.run(t).BackupsCreated)

	h.clock.Advance(days(1))
	assert.Equal(t, 1, h.run(t).BackupsCreated)
	assert.Len(t, h.find(t, "/data", true).Backups, 2)
}

func TestPassNeverStartedContainerNotDue(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	h.rt.states[web.ID] = models.ContainerState{}

	summary := h.run(t)

	assert.Zero(t, summary.BackupsCreated)
	data := h.find(t, "/data", true)
	require.NotNil(t, data, "instance is tracked even before its first backup")
	assert.Nil(t, data.LastBackupAt)
	assert.Nil(t, data.LastAliveAt)
}

func TestPassCountPruning(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.BackupKeepNum = 2
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}

	old := []models.BackupRecord{
		{TakenAt: models.Day(testNow.Add(-days(3))), SizeBytes: 10, File: h.artifact(t, "old-1.tar.gz")},
		{TakenAt: models.Day(testNow.Add(-days(2))), SizeBytes: 20, File: h.artifact(t, "old-2.tar.gz")},
		{TakenAt: models.Day(testNow.Add(-days(1))), SizeBytes: 30, File: h.artifact(t, "old-3.tar.gz")},
	}
	h.seed(t, models.Instance{
		ID:            "seeded",
		ContainerID:   web.ID,
		ContainerName: web.Name,
		Path:          "/data",
		CreatedAt:     testNow.Add(-days(30)),
		LastBackupAt:  models.TimePtr(testNow.Add(-days(1))),
		Backups:       old,
	})

	summary := h.run(t)

	data := h.find(t, "/data", true)
	require.NotNil(t, data)
	require.Len(t, data.Backups, 2)
	assert.Equal(t, old[2].TakenAt, data.Backups[0].TakenAt)
	assert.Equal(t, models.Day(testNow), data.Backups[1].TakenAt)
	assert.False(t, h.artifactExists("old-1.tar.gz"))
	assert.False(t, h.artifactExists("old-2.tar.gz"))
	assert.True(t, h.artifactExists("old-3.tar.gz"))
	assert.Equal(t, 2, summary.RecordsPruned)
	assert.Equal(t, int64(30), summary.PrunedBytes)
}

func TestPassCountPruningNotDue(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.BackupKeepNum = 2
	h.cfg.MinBackupInterval = 7
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}

	h.seed(t, models.Instance{
		ID:            "seeded",
		ContainerID:   web.ID,
		ContainerName: web.Name,
		Path:          "/data",
		CreatedAt:     testNow.Add(-days(30)),
		LastBackupAt:  models.TimePtr(testNow.Add(-days(1))),
		Backups: []models.BackupRecord{
			{TakenAt: models.Day(testNow.Add(-days(3))), SizeBytes: 10, File: h.artifact(t, "old-1.tar.gz")},
			{TakenAt: models.Day(testNow.Add(-days(2))), SizeBytes: 20, File: h.artifact(t, "old-2.tar.gz")},
			{TakenAt: models.Day(testNow.Add(-days(1))), SizeBytes: 30, File: h.artifact(t, "old-3.tar.gz")},
		},
	})

	summary := h.run(t)

	assert.Zero(t, summary.BackupsCreated)
	assert.Len(t, h.find(t, "/data", true).Backups, 2)
	assert.Equal(t, 1, summary.RecordsPruned)
}

func TestPassCountPruningDisabled(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}

	for i := 0; i < 5; i++ {
		h.run(t)
		h.clock.Advance(days(1))
	}

	assert.Len(t, h.find(t, "/data", true).Backups, 5)
}

func TestPassGhostPruning(t *testing.T) {
	h := newHarness(t, newFakeRuntime())
	h.cfg.GhostBackupKeepDays = 10

	h.seed(t, models.Instance{
		ID:            "ghost",
		ContainerID:   "gone12345678",
		ContainerName: "gone",
		Path:          "/data",
		CreatedAt:     testNow.Add(-days(40)),
		LastBackupAt:  models.TimePtr(testNow.Add(-days(12))),
		DeletedAt:     models.TimePtr(testNow.Add(-days(10))),
		Backups: []models.BackupRecord{
			{TakenAt: models.Day(testNow.Add(-days(12))), SizeBytes: 42, File: h.artifact(t, "ghost.tar.gz")},
		},
	})

	summary := h.run(t)
	assert.Zero(t, summary.GhostsRemoved)
	assert.Len(t, h.load(t), 1)
	assert.True(t, h.artifactExists("ghost.tar.gz"))

	h.clock.Advance(days(1))
	summary = h.run(t)
	assert.Equal(t, 1, summary.GhostsRemoved)
	assert.Equal(t, int64(42), summary.PrunedBytes)
	assert.Empty(t, h.load(t))
	assert.False(t, h.artifactExists("ghost.tar.gz"))
}

func TestPassGhostPruningMissingArtifact(t *testing.T) {
	h := newHarness(t, newFakeRuntime())
	h.cfg.GhostBackupKeepDays = 0

	h.seed(t, models.Instance{
		ID:          "ghost",
		ContainerID: "gone12345678",
		Path:        "/",
		CreatedAt:   testNow.Add(-days(40)),
		DeletedAt:   models.TimePtr(testNow.Add(-days(1))),
		Backups: []models.BackupRecord{
			{TakenAt: models.Day(testNow.Add(-days(2))), SizeBytes: 42, File: "already-removed.tar.gz"},
		},
	})

	summary := h.run(t)
	assert.Equal(t, 1, summary.GhostsRemoved)
	assert.Empty(t, summary.Warnings)
	assert.Empty(t, h.load(t))
}

func TestPassSameDayRerun(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.BackupKeepNum = 1
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}

	h.run(t)
	h.rt.data["abc123:/data"] = strings.Repeat("x", 4096)
	h.clock.Advance(2 * time.Hour)
	summary := h.run(t)
	assert.Equal(t, 1, summary.RecordsPruned, "the replaced record counts as pruned")
	assert.Positive(t, summary.PrunedBytes)

	data := h.find(t, "/data", true)
	require.Len(t, data.Backups, 1)
	assert.True(t, h.artifactExists(data.Backups[0].File))
	assert.Equal(t, []string{data.Backups[0].File}, h.backupDirEntries(t))
}

func TestPassClockBehindLatestBackup(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc"}}

	tomorrow := testNow.Add(days(1))
	latest := models.BackupRecord{TakenAt: models.Day(tomorrow), SizeBytes: 7, File: h.artifact(t, "data-tomorrow.tar.gz")}
	h.seed(t,
		models.Instance{
			ID:            "data",
			ContainerID:   web.ID,
			ContainerName: web.Name,
			Path:          "/data",
			CreatedAt:     testNow.Add(-days(10)),
			LastBackupAt:  models.TimePtr(tomorrow),
			Backups:       []models.BackupRecord{latest},
		},
		models.Instance{
			ID:            "etc",
			ContainerID:   web.ID,
			ContainerName: web.Name,
			Path:          "/etc",
			CreatedAt:     testNow.Add(-days(10)),
			LastBackupAt:  models.TimePtr(testNow.Add(-days(3))),
			Backups: []models.BackupRecord{
				{TakenAt: models.Day(testNow.Add(-days(3))), SizeBytes: 5, File: h.artifact(t, "etc-old.tar.gz")},
			},
		},
	)

	summary := h.run(t)

	assert.Equal(t, 1, summary.BackupsCreated)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Err, "clock is behind")
	assert.Equal(t, []string{"abc123:/etc"}, h.rt.copies, "nothing is copied for an older day")

	data := h.find(t, "/data", true)
	require.Len(t, data.Backups, 1)
	assert.Equal(t, latest, data.Backups[0])
	assert.True(t, h.artifactExists(latest.File))
}

func TestPassExecutionFailureIsolated(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data", "/etc", "/srv"}}
	h.rt.copyErr["abc123:/etc"] = errors.New("no such path")
	h.rt.broken["abc123:/srv"] = true

	summary := h.run(t)

	assert.Equal(t, 1, summary.BackupsCreated)
	assert.Len(t, summary.Failures, 2)
	assert.Equal(t, []string{"abc123:/data", "abc123:/etc", "abc123:/srv"}, h.rt.copies)

	data := h.find(t, "/data", true)
	assert.Len(t, data.Backups, 1)
	for _, path := range []string{"/etc", "/srv"} {
		inst := h.find(t, path, true)
		require.NotNil(t, inst)
		assert.Empty(t, inst.Backups)
		assert.Nil(t, inst.LastBackupAt)
	}
	assert.Len(t, h.backupDirEntries(t), 1, "partial artifacts are removed")
}

func TestPassProbeFailure(t *testing.T) {
	db := models.Container{ID: "def4567890ab", Name: "db"}
	h := newHarness(t, newFakeRuntime(web, db))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}, "db": {"/var/lib/db"}}
	h.rt.probeErr[web.ID] = errors.New("inspect timed out")

	summary := h.run(t)

	assert.Equal(t, 1, summary.BackupsCreated)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "web", summary.Failures[0].Subject)
	assert.Empty(t, h.find(t, "/data", true).Backups)
	assert.Len(t, h.find(t, "/var/lib/db", true).Backups, 1)
}

func TestPassListingFailure(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.GhostBackupKeepDays = 1
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	h.seed(t,
		models.Instance{
			ID:            "live",
			ContainerID:   web.ID,
			ContainerName: web.Name,
			Path:          "/data",
			CreatedAt:     testNow.Add(-days(5)),
			Backups:       []models.BackupRecord{},
		},
		models.Instance{
			ID:          "ghost",
			ContainerID: "gone12345678",
			Path:        "/",
			CreatedAt:   testNow.Add(-days(40)),
			DeletedAt:   models.TimePtr(testNow.Add(-days(5))),
			Backups:     []models.BackupRecord{},
		},
	)
	h.rt.listErr = errors.New("daemon unreachable")

	summary := h.run(t)

	assert.Zero(t, summary.BackupsCreated)
	assert.Equal(t, 1, summary.GhostsRemoved)
	require.Len(t, summary.Failures, 1)

	instances := h.load(t)
	require.Len(t, instances, 1)
	assert.Equal(t, "live", instances[0].ID)
	assert.False(t, instances[0].IsDeleted(), "nothing is marked deleted without a listing")
}

func TestPassBackupByDefault(t *testing.T) {
	db := models.Container{ID: "def4567890ab", Name: "db"}
	h := newHarness(t, newFakeRuntime(web, db))
	h.cfg.BackupByDefault = true
	h.cfg.ContainerPaths = map[string][]string{"web": {"/data"}}

	h.run(t)

	instances := h.load(t)
	require.Len(t, instances, 2)
	assert.Equal(t, "/data", instances[0].Path)
	assert.Equal(t, web.ID, instances[0].ContainerID)
	assert.Equal(t, models.RootPath, instances[1].Path)
	assert.Equal(t, db.ID, instances[1].ContainerID)
}

func TestPassLargeBackupWarning(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.WarnLargeBackupMB = 0
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}

	summary := h.run(t)

	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "large backup for abc123:/data")
	assert.True(t, summary.HasProblems())
}

func TestPassNotificationFailureIgnored(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	h.notifier.err = errors.New("telegram down")

	summary := h.run(t)

	assert.Equal(t, 1, summary.BackupsCreated)
	assert.Len(t, h.find(t, "/data", true).Backups, 1)
}

type failingRepo struct {
	*fakeRepo
	saveErr error
}

type fakeRepo struct {
	instances []models.Instance
	loadErr   error
}

func (f *fakeRepo) Load(ctx context.Context) ([]models.Instance, error) {
	return f.instances, f.loadErr
}

func (f *fakeRepo) Save(ctx context.Context, instances []models.Instance) error {
	f.instances = instances
	return nil
}

func (f *fakeRepo) Location() string { return "memory" }

func (f *fakeRepo) Close() error { return nil }

func (f *failingRepo) Save(ctx context.Context, instances []models.Instance) error {
	return f.saveErr
}

func TestPassStoreErrorsAreFatal(t *testing.T) {
	h := newHarness(t, newFakeRuntime(web))
	h.cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}

	pass := NewPass(PassOptions{
		Config:     h.cfg,
		Repository: &fakeRepo{loadErr: errors.New("corrupt")},
		Runtime:    h.rt,
		Clock:      h.clock,
		Logger:     zerolog.Nop(),
	})
	_, err := pass.Run(context.Background())
	assert.ErrorContains(t, err, "failed to load instance store")
	assert.Empty(t, h.rt.copies, "nothing runs without a store")

	pass = NewPass(PassOptions{
		Config:     h.cfg,
		Repository: &failingRepo{fakeRepo: &fakeRepo{}, saveErr: errors.New("disk full")},
		Runtime:    h.rt,
		Clock:      h.clock,
		Notifier:   h.notifier,
		Logger:     zerolog.Nop(),
	})
	_, err = pass.Run(context.Background())
	assert.ErrorContains(t, err, "failed to save instance store")
	assert.Empty(t, h.notifier.summaries)
}
