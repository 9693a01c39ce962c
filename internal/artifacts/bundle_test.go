package artifacts

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

func TestBundleWritesOneEntryPairPerTask(t *testing.T) {
	result := batch.BatchResult{
		BatchID: "b1",
		Tasks: map[string]*batch.TaskResult{
			"task-1": {AgentOutput: "agent ran", TestOutput: "tests passed"},
		},
	}

	data, err := Bundle(result)
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(data))
	found := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		found[hdr.Name] = string(content)
	}

	assert.Equal(t, "agent ran", found["task-1/agent_output.txt"])
	assert.Equal(t, "tests passed", found["task-1/test_output.txt"])
}

func TestBundleOfEmptyResultProducesValidEmptyTar(t *testing.T) {
	data, err := Bundle(batch.BatchResult{Tasks: map[string]*batch.TaskResult{}})
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(data))
	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}
