package archive

import (
	"os"
	"path/filepath"
	"strings"
)

// extensionLanguage maps a source file extension to the inferred agent
// language, in first-seen-wins order when an archive mixes extensions.
var extensionLanguage = map[string]string{
	".py": "python",
	".js": "javascript",
	".ts": "typescript",
	".go": "go",
	".rs": "rust",
	".sh": "bash",
}

// LoadAgentCode reads every file under root/agent_code/ into memory and
// infers the agent's language from the first recognized file extension
// encountered during the walk.
func LoadAgentCode(root string) ([]NamedContent, string, error) {
	dir := filepath.Join(root, "agent_code")

	var files []NamedContent
	language := ""

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, NamedContent{Name: rel, Content: content})

		if language == "" {
			if lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(path))]; ok {
				language = lang
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return files, language, nil
}
