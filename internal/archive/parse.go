package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"gopkg.in/yaml.v3"
)

// LoadTasks walks root/tasks/, parsing each subdirectory into a
// SweForgeTask. workspace.yaml and prompt.md are required per task;
// checks.txt and tests/ are optional.
func LoadTasks(root string) ([]SweForgeTask, error) {
	tasksDir := filepath.Join(root, "tasks")
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return nil, errdefs.ErrInvalidArgument(fmt.Errorf("read tasks directory: %w", err))
	}

	var tasks []SweForgeTask
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		task, err := parseTaskDir(filepath.Join(tasksDir, entry.Name()), entry.Name())
		if err != nil {
			return nil, errdefs.ErrInvalidArgument(fmt.Errorf("parse task %s: %w", entry.Name(), err))
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func parseTaskDir(dir, taskID string) (SweForgeTask, error) {
	workspaceBytes, err := os.ReadFile(filepath.Join(dir, "workspace.yaml"))
	if err != nil {
		return SweForgeTask{}, fmt.Errorf("missing workspace.yaml: %w", err)
	}
	var ws WorkspaceConfig
	if err := yaml.Unmarshal(workspaceBytes, &ws); err != nil {
		return SweForgeTask{}, fmt.Errorf("invalid workspace.yaml: %w", err)
	}
	if ws.Repo == "" {
		return SweForgeTask{}, fmt.Errorf("workspace.yaml missing repo")
	}

	promptBytes, err := os.ReadFile(filepath.Join(dir, "prompt.md"))
	if err != nil {
		return SweForgeTask{}, fmt.Errorf("missing prompt.md: %w", err)
	}

	var checks []string
	if checksBytes, err := os.ReadFile(filepath.Join(dir, "checks.txt")); err == nil {
		for _, line := range strings.Split(string(checksBytes), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				checks = append(checks, line)
			}
		}
	}

	testScripts, testSources, err := loadTests(filepath.Join(dir, "tests"))
	if err != nil {
		return SweForgeTask{}, err
	}

	return SweForgeTask{
		TaskID:      taskID,
		Workspace:   ws,
		PromptText:  string(promptBytes),
		ChecksText:  checks,
		TestScripts: testScripts,
		TestSources: testSources,
	}, nil
}

func loadTests(testsDir string) (scripts, sources []NamedContent, err error) {
	entries, err := os.ReadDir(testsDir)
	if err != nil {
		// tests/ is optional.
		return nil, nil, nil
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(testsDir, entry.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("read test file %s: %w", entry.Name(), err)
		}
		nc := NamedContent{Name: entry.Name(), Content: content}
		if strings.HasSuffix(entry.Name(), ".sh") {
			scripts = append(scripts, nc)
		} else {
			sources = append(sources, nc)
		}
	}

	sortTestScripts(scripts)
	return scripts, sources, nil
}
