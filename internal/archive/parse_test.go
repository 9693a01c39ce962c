package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTaskDir(t *testing.T, root, taskID string, withChecks, withTests bool) {
	t.Helper()
	dir := filepath.Join(root, "tasks", taskID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspace.yaml"), []byte("repo: https://example.com/repo.git\nbase_commit: abc123\ninstall:\n  - pip install -r requirements.txt\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("do the thing"), 0o644))

	if withChecks {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "checks.txt"), []byte("check one\n\ncheck two\n"), 0o644))
	}
	if withTests {
		testsDir := filepath.Join(dir, "tests")
		require.NoError(t, os.MkdirAll(testsDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(testsDir, "run.sh"), []byte("#!/bin/bash\nexit 0\n"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(testsDir, "helper.py"), []byte("# helper"), 0o644))
	}
}

func TestLoadTasksParsesWorkspaceAndPrompt(t *testing.T) {
	root := t.TempDir()
	writeTaskDir(t, root, "task-1", false, false)

	tasks, err := LoadTasks(root)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "task-1", task.TaskID)
	assert.Equal(t, "https://example.com/repo.git", task.Workspace.Repo)
	assert.Equal(t, "abc123", task.Workspace.BaseCommit)
	assert.Equal(t, []string{"pip install -r requirements.txt"}, task.Workspace.Install)
	assert.Equal(t, "do the thing", task.PromptText)
	assert.Empty(t, task.ChecksText)
}

func TestLoadTasksParsesChecksAndTests(t *testing.T) {
	root := t.TempDir()
	writeTaskDir(t, root, "task-1", true, true)

	tasks, err := LoadTasks(root)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, []string{"check one", "check two"}, task.ChecksText)
	require.Len(t, task.TestScripts, 1)
	assert.Equal(t, "run.sh", task.TestScripts[0].Name)
	require.Len(t, task.TestSources, 1)
	assert.Equal(t, "helper.py", task.TestSources[0].Name)
}

func TestLoadTasksRejectsMissingWorkspaceYAML(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tasks", "task-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("p"), 0o644))

	_, err := LoadTasks(root)
	assert.Error(t, err)
}

func TestLoadTasksRejectsMissingRepoField(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tasks", "task-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspace.yaml"), []byte("base_commit: abc\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("p"), 0o644))

	_, err := LoadTasks(root)
	assert.Error(t, err)
}

func TestLoadTasksHandlesMultipleTasks(t *testing.T) {
	root := t.TempDir()
	writeTaskDir(t, root, "task-a", false, false)
	writeTaskDir(t, root, "task-b", false, false)

	tasks, err := LoadTasks(root)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
