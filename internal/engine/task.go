package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PlatformNetwork/term-executor/internal/archive"
	"github.com/PlatformNetwork/term-executor/internal/batch"
)

// agentRunner returns the shell command that runs an agent program
// written to scriptPath, for the given language.
func agentRunner(language, scriptPath string) string {
	switch language {
	case "python", "py":
		return fmt.Sprintf("python3 %s", scriptPath)
	case "javascript", "js", "node":
		return fmt.Sprintf("node %s", scriptPath)
	case "typescript", "ts":
		return fmt.Sprintf("npx tsx %s", scriptPath)
	case "rust", "rs":
		return fmt.Sprintf("rustc %s -o /tmp/agent_bin && /tmp/agent_bin", scriptPath)
	case "go", "golang":
		return fmt.Sprintf("go run %s", scriptPath)
	case "ruby", "rb":
		return fmt.Sprintf("ruby %s", scriptPath)
	default:
		return fmt.Sprintf("bash %s", scriptPath)
	}
}

// taskRunner drives a single task through its phase state machine. One
// taskRunner is created per task and discarded after runSingleTask returns.
type taskRunner struct {
	eng  *Engine
	task archive.SweForgeTask

	agentCode     []archive.NamedContent
	agentLanguage string

	workDir string
}

func (t *taskRunner) runSingleTask(ctx context.Context) batch.TaskResult {
	start := time.Now()
	result := batch.TaskResult{TaskID: t.task.TaskID, Status: batch.TaskQueued}

	defer RemoveWorkDir(t.eng.log, t.workDir)

	if err := os.MkdirAll(t.workDir, 0o755); err != nil {
		return t.fail(result, fmt.Errorf("create work directory: %w", err), start)
	}

	if ctx.Err() != nil {
		return t.cancelled(result, start)
	}

	result.Status = batch.TaskCloningRepo
	repoDir := filepath.Join(t.workDir, "repo")
	if err := t.cloneRepo(ctx, repoDir); err != nil {
		return t.fail(result, err, start)
	}
	if ctx.Err() != nil {
		return t.cancelled(result, start)
	}

	result.Status = batch.TaskInstallingDeps
	if err := t.runInstall(ctx, repoDir); err != nil {
		return t.fail(result, err, start)
	}
	if ctx.Err() != nil {
		return t.cancelled(result, start)
	}

	result.Status = batch.TaskRunningAgent
	agentOutput, err := t.runAgent(ctx, repoDir)
	result.AgentOutput = agentOutput
	if err != nil {
		return t.fail(result, err, start)
	}
	if ctx.Err() != nil {
		return t.cancelled(result, start)
	}

	if err := t.writeTestSources(repoDir); err != nil {
		return t.fail(result, err, start)
	}

	result.Status = batch.TaskRunningTests
	testResults, testOutput, err := t.runTests(ctx, repoDir)
	result.TestResults = testResults
	result.TestOutput = testOutput
	if err != nil {
		return t.fail(result, err, start)
	}

	passed := allPassed(testResults)
	result.Status = batch.TaskCompleted
	result.Passed = passed
	if passed {
		result.Reward = 1.0
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (t *taskRunner) fail(result batch.TaskResult, err error, start time.Time) batch.TaskResult {
	result.Status = batch.TaskFailed
	result.Error = err.Error()
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (t *taskRunner) cancelled(result batch.TaskResult, start time.Time) batch.TaskResult {
	result.Status = batch.TaskFailed
	result.Error = "cancelled"
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (t *taskRunner) cloneRepo(ctx context.Context, repoDir string) error {
	cloneCmd := fmt.Sprintf("git clone --depth 50 --single-branch %s %s", shellQuote(t.task.Workspace.Repo), shellQuote(repoDir))
	out, err := runShell(ctx, cloneCmd, t.eng.cfg.WorkspaceBase, t.eng.cfg.CloneTimeout, nil, t.eng.cfg.MaxOutputBytes)
	if err != nil {
		return fmt.Errorf("clone repository: %w", err)
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("git clone failed (exit %d): %s", out.ExitCode, out.Output)
	}

	if commit := t.task.Workspace.BaseCommit; commit != "" {
		checkoutCmd := fmt.Sprintf("git checkout %s", shellQuote(commit))
		out, err := runShell(ctx, checkoutCmd, repoDir, t.eng.cfg.CloneTimeout, nil, t.eng.cfg.MaxOutputBytes)
		if err != nil {
			return fmt.Errorf("checkout base commit: %w", err)
		}
		if out.ExitCode != 0 {
			return fmt.Errorf("git checkout %s failed (exit %d): %s", commit, out.ExitCode, out.Output)
		}
	}
	return nil
}

// runInstall runs each workspace.yaml install[] command in turn, each
// under its own CLONE_TIMEOUT_SECS budget (install commands are
// typically package-manager invocations of similar weight to a clone,
// not agent-length work).
func (t *taskRunner) runInstall(ctx context.Context, repoDir string) error {
	for _, cmd := range t.task.Workspace.Install {
		out, err := runShell(ctx, cmd, repoDir, t.eng.cfg.CloneTimeout, nil, t.eng.cfg.MaxOutputBytes)
		if err != nil {
			return fmt.Errorf("install command %q: %w", cmd, err)
		}
		if out.ExitCode != 0 {
			return fmt.Errorf("install command %q failed (exit %d): %s", cmd, out.ExitCode, out.Output)
		}
	}
	return nil
}

func (t *taskRunner) runAgent(ctx context.Context, repoDir string) (string, error) {
	if len(t.agentCode) == 0 {
		return "", fmt.Errorf("no agent code in archive")
	}

	for _, f := range t.agentCode {
		dest := filepath.Join(repoDir, f.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", fmt.Errorf("write agent code: %w", err)
		}
		if err := os.WriteFile(dest, f.Content, 0o644); err != nil {
			return "", fmt.Errorf("write agent code: %w", err)
		}
	}

	promptPath := filepath.Join(repoDir, "_task_prompt.md")
	if err := os.WriteFile(promptPath, []byte(t.task.PromptText), 0o644); err != nil {
		return "", fmt.Errorf("write task prompt: %w", err)
	}

	runCmd := agentRunner(t.agentLanguage, t.agentCode[0].Name)
	env := append(os.Environ(),
		"TASK_PROMPT="+promptPath,
		"REPO_DIR="+repoDir,
	)

	out, err := runShell(ctx, runCmd, repoDir, t.eng.cfg.AgentTimeout, env, t.eng.cfg.MaxOutputBytes)
	if err != nil {
		return out.Output, fmt.Errorf("run agent: %w", err)
	}
	// A non-zero agent exit is not itself a task failure; the tests decide.
	return out.Output, nil
}

func (t *taskRunner) writeTestSources(repoDir string) error {
	for _, src := range t.task.TestSources {
		dest := filepath.Join(repoDir, src.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("write test source %s: %w", src.Name, err)
		}
		if err := os.WriteFile(dest, src.Content, 0o644); err != nil {
			return fmt.Errorf("write test source %s: %w", src.Name, err)
		}
	}
	return nil
}

func (t *taskRunner) runTests(ctx context.Context, repoDir string) ([]batch.TestScriptResult, string, error) {
	scripts := append([]archive.NamedContent(nil), t.task.TestScripts...)
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })

	var results []batch.TestScriptResult
	var combined []byte

	for _, script := range scripts {
		if ctx.Err() != nil {
			return results, string(combined), ctx.Err()
		}

		scriptPath := filepath.Join(repoDir, script.Name)
		if err := os.MkdirAll(filepath.Dir(scriptPath), 0o755); err != nil {
			return results, string(combined), fmt.Errorf("write test script %s: %w", script.Name, err)
		}
		if err := os.WriteFile(scriptPath, script.Content, 0o755); err != nil {
			return results, string(combined), fmt.Errorf("write test script %s: %w", script.Name, err)
		}

		runCmd := fmt.Sprintf("bash %s", shellQuote(scriptPath))
		out, err := runShell(ctx, runCmd, repoDir, t.eng.cfg.TestTimeout, nil, t.eng.cfg.MaxOutputBytes)

		exitCode := out.ExitCode
		passed := err == nil && exitCode == 0
		output := out.Output
		if err != nil && out.Output == "" {
			output = err.Error()
			exitCode = -1
		}

		results = append(results, batch.TestScriptResult{
			Name:     script.Name,
			Passed:   passed,
			Output:   output,
			ExitCode: exitCode,
		})

		section := fmt.Sprintf("=== %s (exit %d) ===\n%s\n%s", script.Name, exitCode, output, passStr(passed))
		if len(combined) > 0 {
			combined = append(combined, '\n', '\n')
		}
		combined = append(combined, section...)
	}

	return results, string(combined), nil
}

func allPassed(results []batch.TestScriptResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func passStr(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
