package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

// TestAggregateRewardIsMeanOfTaskRewards is the testable property spec.md
// states directly: aggregate_reward == mean(task.reward).
func TestAggregateRewardIsMeanOfTaskRewards(t *testing.T) {
	tasks := map[string]*batch.TaskResult{
		"t1": {Reward: 1.0},
		"t2": {Reward: 0.0},
		"t3": {Reward: 0.5},
	}

	assert.InDelta(t, 0.5, aggregateReward(tasks), 1e-9)
}

func TestAggregateRewardOfEmptySetIsZero(t *testing.T) {
	assert.Equal(t, float64(0), aggregateReward(map[string]*batch.TaskResult{}))
}

// TestPassedPlusFailedEqualsTotal is the second testable property spec.md
// states directly: passed_tasks + failed_tasks == total_tasks. Asserted
// against the countPassed helper and against the real BatchResult the
// registry hands back from GET /batch/{id}, so a regression that leaves
// CompletedTasks/FailedTasks unpopulated on the production struct fails
// this test even though the helper-level math below still checks out.
func TestPassedPlusFailedEqualsTotal(t *testing.T) {
	tasks := map[string]*batch.TaskResult{
		"t1": {Passed: true},
		"t2": {Passed: false},
		"t3": {Passed: true},
		"t4": {Passed: false},
	}

	passed := countPassed(tasks)
	failed := len(tasks) - passed
	assert.Equal(t, 2, passed)
	assert.Equal(t, 2, failed)
	assert.Equal(t, len(tasks), passed+failed)

	registry := batch.New(time.Hour, nil)
	b, _ := registry.Create(4, len(tasks))
	b.Update(func(res *batch.BatchResult) {
		for id, tr := range tasks {
			res.Tasks[id] = tr
		}
		res.PassedTasks = countPassed(res.Tasks)
	})
	registry.MarkCompleted(b.ID)

	result := b.Snapshot()
	require.Equal(t, 4, result.TotalTasks)
	assert.Equal(t, 2, result.PassedTasks)
	assert.Equal(t, 2, result.FailedTasks)
	assert.Equal(t, result.TotalTasks, result.CompletedTasks)
	assert.Equal(t, result.TotalTasks, result.PassedTasks+result.FailedTasks)
}

func TestAgentRunnerDispatchesByLanguage(t *testing.T) {
	cases := map[string]string{
		"python":     "python3 ",
		"javascript": "node ",
		"rust":       "rustc ",
		"go":         "go run ",
		"unknown":    "bash ",
	}
	for lang, wantPrefix := range cases {
		got := agentRunner(lang, "script")
		assert.Contains(t, got, wantPrefix)
	}
}

func TestShellQuoteEscapesEmbeddedQuotes(t *testing.T) {
	got := shellQuote("it's a path")
	assert.Equal(t, `'it'\''s a path'`, got)
}

func TestAllPassedRequiresAtLeastOneScript(t *testing.T) {
	assert.False(t, allPassed(nil))
}

func TestAllPassedRequiresEveryScriptToPass(t *testing.T) {
	results := []batch.TestScriptResult{{Passed: true}, {Passed: false}}
	assert.False(t, allPassed(results))

	results = []batch.TestScriptResult{{Passed: true}, {Passed: true}}
	assert.True(t, allPassed(results))
}
