package relevance

import (
	"path"
	"strings"

	"github.com/MEKXH/mcpilot/internal/mcp"
)

// Category is the coarse kind of a resource, used for diversity.
type Category string

const (
	CategoryCode          Category = "code"
	CategoryDocumentation Category = "documentation"
	CategoryConfig        Category = "config"
	CategoryTest          Category = "test"
	CategoryData          Category = "data"
	CategoryOther         Category = "other"
)

var (
	docExts    = map[string]bool{".md": true, ".markdown": true, ".rst": true, ".txt": true, ".adoc": true}
	configExts = map[string]bool{".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".env": true}
	dataExts   = map[string]bool{".csv": true, ".tsv": true, ".sql": true, ".db": true, ".parquet": true, ".ndjson": true}
	codeExts   = map[string]bool{
		".go": true, ".sol": true, ".vy": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
		".py": true, ".rs": true, ".java": true, ".c": true, ".h": true, ".cpp": true, ".move": true,
	}
)

// Categorize infers a category from the resource uri, name and mime type.
func Categorize(r mcp.Resource) Category {
	id := strings.ToLower(r.URI + " " + r.Name)
	base := strings.ToLower(path.Base(r.Name))
	if base == "." || base == "/" || base == "" {
		base = strings.ToLower(path.Base(r.URI))
	}
	ext := path.Ext(base)
	mime := strings.ToLower(r.MimeType)

	switch {
	case strings.Contains(base, "_test.") || strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_") || strings.Contains(id, "/test/") || strings.Contains(id, "/tests/"):
		return CategoryTest
	case docExts[ext] || mime == "text/markdown" || strings.HasPrefix(base, "readme") || strings.Contains(id, "/docs/"):
		return CategoryDocumentation
	case configExts[ext] || strings.Contains(base, "config"):
		return CategoryConfig
	case dataExts[ext] || mime == "text/csv":
		return CategoryData
	case codeExts[ext] || strings.HasPrefix(mime, "text/x-"):
		return CategoryCode
	default:
		return CategoryOther
	}
}
