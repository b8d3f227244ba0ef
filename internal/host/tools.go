package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
)

var errOutsideWorkspace = errors.New("path is outside the workspace")

// resolvePath maps a tool path onto the workspace. Relative paths are taken
// from the workspace root; anything escaping the root is rejected.
func resolvePath(path, root string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)
	cleanRoot := filepath.Clean(root)

	if absPath != cleanRoot && !strings.HasPrefix(absPath, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errOutsideWorkspace, absPath)
	}
	return absPath, nil
}

// ReadFileInput parameters for read_file tool
type ReadFileInput struct {
	Path   string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Starting line number (0-based)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read"`
}

// ReadFileOutput result of read_file tool
type ReadFileOutput struct {
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
}

type readFileTool struct {
	root string
}

func (t *readFileTool) execute(ctx context.Context, input *ReadFileInput) (*ReadFileOutput, error) {
	path, err := resolvePath(input.Path, t.root)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	if input.Offset > 0 {
		if input.Offset >= len(lines) {
			lines = []string{}
		} else {
			lines = lines[input.Offset:]
		}
	}
	if input.Limit > 0 && input.Limit < len(lines) {
		lines = lines[:input.Limit]
	}
	return &ReadFileOutput{Content: strings.Join(lines, "\n"), TotalLines: total}, nil
}

// WriteFileInput parameters for write_file tool
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

type writeFileTool struct {
	root string
}

func (t *writeFileTool) execute(ctx context.Context, input *WriteFileInput) (string, error) {
	path, err := resolvePath(input.Path, t.root)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(input.Content), 0644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(input.Content), input.Path), nil
}

// ListDirInput parameters for list_dir tool
type ListDirInput struct {
	Path string `json:"path" jsonschema:"description=Directory relative to the workspace root (default: root)"`
}

type listDirTool struct {
	root string
}

func (t *listDirTool) execute(ctx context.Context, input *ListDirInput) ([]string, error) {
	path, err := resolvePath(input.Path, t.root)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		result = append(result, name)
	}
	return result, nil
}

// SearchFilesInput parameters for search_files tool
type SearchFilesInput struct {
	Query      string `json:"query" jsonschema:"required,description=Case-insensitive text to look for"`
	Path       string `json:"path,omitempty" jsonschema:"description=Directory to search (default: root)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum matches to return (default 50)"`
}

// SearchMatch one search hit
type SearchMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

type searchFilesTool struct {
	root string
}

func (t *searchFilesTool) execute(ctx context.Context, input *SearchFilesInput) ([]SearchMatch, error) {
	query := strings.ToLower(strings.TrimSpace(input.Query))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	base, err := resolvePath(input.Path, t.root)
	if err != nil {
		return nil, err
	}
	limit := input.MaxResults
	if limit <= 0 {
		limit = 50
	}

	matches := make([]SearchMatch, 0)
	errLimit := errors.New("limit reached")
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != base && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		rel, _ := filepath.Rel(t.root, path)
		scanner := bufio.NewScanner(f)
		for n := 1; scanner.Scan(); n++ {
			line := scanner.Text()
			if strings.Contains(strings.ToLower(line), query) {
				matches = append(matches, SearchMatch{File: filepath.ToSlash(rel), Line: n, Text: strings.TrimSpace(line)})
				if len(matches) >= limit {
					return errLimit
				}
			}
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errLimit) {
		return nil, walkErr
	}
	return matches, nil
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "dist", "build", "target":
		return true
	}
	return false
}

func newWorkspaceTools(root string) ([]tool.InvokableTool, error) {
	readFile, err := utils.InferTool("read_file", "Read the contents of a workspace file", (&readFileTool{root: root}).execute)
	if err != nil {
		return nil, err
	}
	listDir, err := utils.InferTool("list_dir", "List the contents of a workspace directory", (&listDirTool{root: root}).execute)
	if err != nil {
		return nil, err
	}
	writeFile, err := utils.InferTool("write_file", "Write content to a workspace file", (&writeFileTool{root: root}).execute)
	if err != nil {
		return nil, err
	}
	search, err := utils.InferTool("search_files", "Search workspace files for a line containing text", (&searchFilesTool{root: root}).execute)
	if err != nil {
		return nil, err
	}
	return []tool.InvokableTool{readFile, listDir, writeFile, search}, nil
}
