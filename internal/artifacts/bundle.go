package artifacts

import (
	"archive/tar"
	"bytes"
	"fmt"

	"github.com/PlatformNetwork/term-executor/internal/batch"
)

// Bundle packs every task's agent_output and test_output (already capped
// at MAX_OUTPUT) into a tar archive suitable for Store.Upload.
func Bundle(result batch.BatchResult) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for taskID, task := range result.Tasks {
		for name, content := range map[string]string{
			"agent_output.txt": task.AgentOutput,
			"test_output.txt":  task.TestOutput,
		} {
			hdr := &tar.Header{
				Name: fmt.Sprintf("%s/%s", taskID, name),
				Mode: 0o644,
				Size: int64(len(content)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, fmt.Errorf("write tar header for %s: %w", hdr.Name, err)
			}
			if _, err := tw.Write([]byte(content)); err != nil {
				return nil, fmt.Errorf("write tar body for %s: %w", hdr.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close bundle tar writer: %w", err)
	}
	return buf.Bytes(), nil
}
