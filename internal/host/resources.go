package host

import (
	"encoding/base64"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/MEKXH/mcpilot/internal/mcp"
)

const (
	maxListedResources = 200
	maxResourceDepth   = 4
	maxResourceBytes   = 1 << 20
)

var extraMimeTypes = map[string]string{
	".go":   "text/x-go",
	".sol":  "text/x-solidity",
	".md":   "text/markdown",
	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".rs":   "text/x-rust",
	".py":   "text/x-python",
	".toml": "application/toml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".mod":  "text/plain",
}

func mimeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if m, ok := extraMimeTypes[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return strings.TrimSpace(strings.Split(m, ";")[0])
	}
	return "text/plain"
}

// priorityFor ranks documents the assistant should see first on a 0-10 scale.
func priorityFor(rel string) *float64 {
	base := strings.ToLower(filepath.Base(rel))
	var p float64
	switch {
	case strings.HasPrefix(base, "readme"):
		p = 9
	case strings.HasPrefix(filepath.ToSlash(strings.ToLower(rel)), "docs/"):
		p = 7
	case base == "go.mod" || base == "package.json" || base == "cargo.toml" || base == "foundry.toml" || base == "hardhat.config.ts":
		p = 6
	default:
		return nil
	}
	return &p
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func pathFromURI(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(parsed.Path), true
}

func listResources(root string) []mcp.Resource {
	out := make([]mcp.Resource, 0)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipDir(d.Name()) || strings.Count(filepath.ToSlash(rel), "/") >= maxResourceDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if len(out) >= maxListedResources {
			return filepath.SkipAll
		}

		res := mcp.Resource{
			URI:         fileURI(path),
			Name:        filepath.ToSlash(rel),
			Description: describe(rel),
			MimeType:    mimeFor(path),
		}
		if p := priorityFor(rel); p != nil {
			res.Annotations = &mcp.Annotations{Priority: p}
		}
		out = append(out, res)
		return nil
	})
	return out
}

func describe(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return "workspace file"
	}
	return "workspace file in " + dir
}

func readResource(path string) (mcp.ResourceContents, error) {
	info, err := os.Stat(path)
	if err != nil {
		return mcp.ResourceContents{}, err
	}
	if info.IsDir() {
		return mcp.ResourceContents{}, fs.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return mcp.ResourceContents{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxResourceBytes))
	if err != nil {
		return mcp.ResourceContents{}, err
	}

	contents := mcp.ResourceContents{URI: fileURI(path), MimeType: mimeFor(path)}
	if utf8.Valid(data) {
		contents.Text = string(data)
	} else {
		contents.Blob = base64.StdEncoding.EncodeToString(data)
	}
	return contents, nil
}
