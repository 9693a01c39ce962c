package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"
)

// Loader extracts a submitted archive and parses its task set. Failures
// at any stage collapse to a single opaque error; detailed causes are
// only available to the caller's logger via the wrapped error chain,
// never echoed to the submitter.
type Loader struct{}

// NewLoader returns a Loader. Stateless; kept as a type for parity with
// the rest of the package's component style and to give tests a seam.
func NewLoader() *Loader { return &Loader{} }

// Load extracts data into a fresh subdirectory of workDir and parses its
// task set, returning the extraction root and tasks.
func (l *Loader) Load(ctx context.Context, data []byte, workDir string) (*Extracted, error) {
	root := filepath.Join(workDir, "archive")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errdefs.ErrInvalidArgument(fmt.Errorf("prepare extraction dir: %w", err))
	}

	if err := Extract(ctx, data, root); err != nil {
		return nil, err
	}

	taskRoot, err := findTaskRoot(root)
	if err != nil {
		return nil, errdefs.ErrInvalidArgument(err)
	}

	tasks, err := LoadTasks(taskRoot)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errdefs.ErrInvalidArgument(fmt.Errorf("archive contains no tasks"))
	}

	agentCode, agentLanguage, err := LoadAgentCode(taskRoot)
	if err != nil {
		return nil, errdefs.ErrInvalidArgument(fmt.Errorf("load agent_code: %w", err))
	}
	if len(agentCode) == 0 {
		return nil, errdefs.ErrInvalidArgument(fmt.Errorf("archive contains no agent_code"))
	}

	return &Extracted{Root: taskRoot, Tasks: tasks, AgentCode: agentCode, AgentLanguage: agentLanguage}, nil
}

// findTaskRoot locates the directory holding both a tasks/ and an
// agent_code/ subdirectory, either directly or exactly one level deep —
// the common case where an archive has a single top-level wrapper
// directory.
func findTaskRoot(base string) (string, error) {
	if isArchiveRoot(base) {
		return base, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("read extracted archive root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(base, entry.Name())
		if isArchiveRoot(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no tasks/ and agent_code/ directories found in extracted archive")
}

func isArchiveRoot(dir string) bool {
	return isDir(filepath.Join(dir, "tasks")) && isDir(filepath.Join(dir, "agent_code"))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
