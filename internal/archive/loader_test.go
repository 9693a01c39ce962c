package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullArchiveFiles() map[string]string {
	return map[string]string{
		"tasks/task-1/workspace.yaml": "repo: https://example.com/repo.git\n",
		"tasks/task-1/prompt.md":      "fix the bug",
		"tasks/task-1/tests/run.sh":   "#!/bin/bash\nexit 0\n",
		"agent_code/main.py":          "print('agent')",
	}
}

func TestLoaderLoadExtractsAndParses(t *testing.T) {
	data := buildTarGz(t, fullArchiveFiles())
	loader := NewLoader()

	extracted, err := loader.Load(context.Background(), data, t.TempDir())
	require.NoError(t, err)

	require.Len(t, extracted.Tasks, 1)
	assert.Equal(t, "task-1", extracted.Tasks[0].TaskID)
	require.Len(t, extracted.AgentCode, 1)
	assert.Equal(t, "python", extracted.AgentLanguage)
}

func TestLoaderLoadFindsTaskRootOneLevelDeep(t *testing.T) {
	files := map[string]string{}
	for name, content := range fullArchiveFiles() {
		files["wrapper-dir/"+name] = content
	}
	data := buildTarGz(t, files)
	loader := NewLoader()

	extracted, err := loader.Load(context.Background(), data, t.TempDir())
	require.NoError(t, err)
	require.Len(t, extracted.Tasks, 1)
}

func TestLoaderLoadRejectsArchiveWithNoTasks(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"agent_code/main.py": "print('agent')",
	})
	loader := NewLoader()

	_, err := loader.Load(context.Background(), data, t.TempDir())
	assert.Error(t, err)
}

func TestLoaderLoadRejectsArchiveWithNoAgentCode(t *testing.T) {
	data := buildTarGz(t, map[string]string{
		"tasks/task-1/workspace.yaml": "repo: https://example.com/repo.git\n",
		"tasks/task-1/prompt.md":      "fix the bug",
	})
	loader := NewLoader()

	_, err := loader.Load(context.Background(), data, t.TempDir())
	assert.Error(t, err)
}
