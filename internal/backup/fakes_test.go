package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aelpxy/stash/internal/store"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC)

type fakeRuntime struct {
	containers []models.Container
	states     map[string]models.ContainerState
	listErr    error
	probeErr   map[string]error
	copyErr    map[string]error
	data       map[string]string
	broken     map[string]bool
	copies     []string
}

func newFakeRuntime(containers ...models.Container) *fakeRuntime {
	rt := &fakeRuntime{
		containers: containers,
		states:     make(map[string]models.ContainerState),
		probeErr:   make(map[string]error),
		copyErr:    make(map[string]error),
		data:       make(map[string]string),
		broken:     make(map[string]bool),
	}
	for _, c := range containers {
		rt.states[c.ID] = models.ContainerState{Running: true, StartedAt: testNow.AddDate(0, -1, 0)}
	}
	return rt
}

func (f *fakeRuntime) ListContainers(ctx context.Context) ([]models.Container, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.containers, nil
}

func (f *fakeRuntime) InspectState(ctx context.Context, containerID string) (models.ContainerState, error) {
	if err := f.probeErr[containerID]; err != nil {
		return models.ContainerState{}, err
	}
	state, ok := f.states[containerID]
	if !ok {
		return models.ContainerState{}, errors.New("container not found")
	}
	return state, nil
}

func (f *fakeRuntime) CopyPath(ctx context.Context, containerID, path string) (io.ReadCloser, error) {
	key := containerID + ":" + path
	f.copies = append(f.copies, key)
	if err := f.copyErr[key]; err != nil {
		return nil, err
	}
	if f.broken[key] {
		return io.NopCloser(failingReader{}), nil
	}
	content, ok := f.data[key]
	if !ok {
		content = "contents of " + key
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// failingReader fails on the first read.
type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

type fakeNotifier struct {
	summaries []*Summary
	err       error
}

func (f *fakeNotifier) Notify(ctx context.Context, summary *Summary) error {
	f.summaries = append(f.summaries, summary)
	return f.err
}

type harness struct {
	cfg      models.Config
	repo     *store.JSONStore
	rt       *fakeRuntime
	clock    *testclock.Clock
	notifier *fakeNotifier
	ids      int
}

func newHarness(t *testing.T, rt *fakeRuntime) *harness {
	t.Helper()

	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backups, 0755))

	return &harness{
		cfg: models.Config{
			MinBackupInterval:   0,
			GhostBackupKeepDays: -1,
			BackupKeepNum:       -1,
			WarnLargeBackupMB:   1024,
			BackupByDefault:     false,
			ContainerPaths:      map[string][]string{},
			InstanceInfoDirPath: dir,
			InstanceInfoFormat:  models.StoreFormatJSON,
			BackupDirPath:       backups,
			LogDirPath:          dir,
		},
		repo:     store.NewJSONStore(filepath.Join(dir, store.JSONFileName)),
		rt:       rt,
		clock:    testclock.NewClock(testNow),
		notifier: &fakeNotifier{},
	}
}

func (h *harness) newID() string {
	h.ids++
	return fmt.Sprintf("inst-%d", h.ids)
}

func (h *harness) pass() *Pass {
	return NewPass(PassOptions{
		Config:     h.cfg,
		Repository: h.repo,
		Runtime:    h.rt,
		Notifier:   h.notifier,
		Clock:      h.clock,
		Logger:     zerolog.Nop(),
		RunID:      "test",
		NewID:      h.newID,
	})
}

func (h *harness) run(t *testing.T) *Summary {
	t.Helper()
	summary, err := h.pass().Run(context.Background())
	require.NoError(t, err)
	return summary
}

func (h *harness) seed(t *testing.T, instances ...models.Instance) {
	t.Helper()
	require.NoError(t, h.repo.Save(context.Background(), instances))
}

func (h *harness) load(t *testing.T) []models.Instance {
	t.Helper()
	instances, err := h.repo.Load(context.Background())
	require.NoError(t, err)
	return instances
}

func (h *harness) find(t *testing.T, path string, live bool) *models.Instance {
	t.Helper()
	for _, inst := range h.load(t) {
		if inst.Path == path && inst.IsDeleted() != live {
			found := inst
			return &found
		}
	}
	return nil
}

// artifact writes a fake artifact for a seeded record.
func (h *harness) artifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.cfg.BackupDirPath, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	return name
}

func (h *harness) artifactExists(name string) bool {
	_, err := os.Stat(filepath.Join(h.cfg.BackupDirPath, name))
	return err == nil
}

func (h *harness) backupDirEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.cfg.BackupDirPath)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
