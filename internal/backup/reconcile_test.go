package backup

import (
	"fmt"
	"testing"

	"github.com/aelpxy/stash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestDesiredPaths(t *testing.T) {
	c := models.Container{ID: "0123456789abcdef0123", Name: "db"}

	paths := map[string][]string{
		"db":                   {"/data", "/etc", "/data"},
		"fedcba987654":         {"/srv"},
		"0123456789abcdef9999": {"/etc", "/var"},
		"other":                {"/other"},
	}

	assert.Equal(t, []string{"/etc", "/var", "/data"}, DesiredPaths(c, paths, false))
	assert.Equal(t, []string{models.RootPath}, DesiredPaths(c, map[string][]string{"other": {"/x"}}, true))
	assert.Empty(t, DesiredPaths(c, map[string][]string{"other": {"/x"}}, false))
}

func TestReconcile(t *testing.T) {
	web := models.Container{ID: "abc123", Name: "web"}
	cfg := models.Config{ContainerPaths: map[string][]string{"web": {"/data", "/etc"}}}

	table, result := Reconcile(nil, []models.Container{web}, cfg, testNow, sequentialIDs())
	require.Len(t, table, 2)
	assert.Len(t, result.Created, 2)
	assert.Equal(t, "id-1", table[0].ID)
	assert.Equal(t, "/data", table[0].Path)
	assert.Equal(t, testNow, table[0].CreatedAt)
	assert.NotNil(t, table[0].Backups)

	renamed := models.Container{ID: "abc123", Name: "frontend"}
	cfg.ContainerPaths = map[string][]string{"abc123": {"/data"}}
	table, result = Reconcile(table, []models.Container{renamed}, cfg, testNow.Add(days(1)), sequentialIDs())
	require.Len(t, table, 2)
	assert.Empty(t, result.Created)
	require.Len(t, result.Deleted, 1)
	assert.Equal(t, "/etc", result.Deleted[0].Path)
	assert.Equal(t, "frontend", table[0].ContainerName)

	// container gone from the runtime
	table, result = Reconcile(table, nil, cfg, testNow.Add(days(2)), sequentialIDs())
	require.Len(t, result.Deleted, 1)
	assert.Equal(t, "/data", result.Deleted[0].Path)
	assert.True(t, table[1].DeletedAt.Equal(testNow.Add(days(1))), "deleted_at is never moved")
}

func TestLiveByContainer(t *testing.T) {
	table := []*models.Instance{
		{ID: "1", ContainerID: "a", Path: "/x"},
		{ID: "2", ContainerID: "a", Path: "/y", DeletedAt: models.TimePtr(testNow)},
		{ID: "3", ContainerID: "b", Path: "/"},
		{ID: "4", ContainerID: "a", Path: "/z"},
	}

	groups := LiveByContainer(table, []models.Container{{ID: "a"}})
	require.Len(t, groups, 1)
	require.Len(t, groups["a"], 2)
	assert.Equal(t, "1", groups["a"][0].ID)
	assert.Equal(t, "4", groups["a"][1].ID)
}
