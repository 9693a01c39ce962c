// Package archive detects, extracts, and parses submitted task bundles
// (tar.gz or zip) into the task set a BatchEngine run drives.
package archive

import "sort"

// WorkspaceConfig is the parsed contents of a task's workspace.yaml.
// All fields beyond repo are optional and default-if-absent.
type WorkspaceConfig struct {
	Repo       string   `yaml:"repo"`
	Version    string   `yaml:"version"`
	BaseCommit string   `yaml:"base_commit"`
	Language   string   `yaml:"language"`
	Install    []string `yaml:"install"`
}

// SweForgeTask is one repository/agent/test triple parsed from a task
// subdirectory inside an extracted archive.
type SweForgeTask struct {
	TaskID      string
	Workspace   WorkspaceConfig
	PromptText  string
	ChecksText  []string // advisory only; tests/*.sh remains authoritative
	TestScripts []NamedContent
	TestSources []NamedContent
}

// NamedContent pairs a relative path or filename with its raw bytes.
type NamedContent struct {
	Name    string
	Content []byte
}

// Extracted is the result of extracting and parsing a submitted archive:
// the task set, the single agent program shared by every task, and the
// root directory they were unpacked into, so the engine can clone repos
// and run tests against the same tree. agent_code is never echoed back
// to API clients.
type Extracted struct {
	Root          string
	Tasks         []SweForgeTask
	AgentCode     []NamedContent
	AgentLanguage string
}

// sortTestScripts orders test scripts by filename, matching the
// "executed in order" requirement for tests/*.sh.
func sortTestScripts(scripts []NamedContent) {
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })
}
