package pipeline

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeatlas-dev/codeatlas/internal/parser"
)

// File is one ingestion input: a source path tagged with its language and
// raw text.
type File struct {
	Path     string
	Language parser.Language
	Source   []byte
}

// Walker traverses directories respecting include/exclude patterns.
type Walker struct {
	includes []string
	excludes []string
}

// NewWalker creates a file walker with the given include and exclude
// patterns. If no includes are specified, defaults to the extensions of the
// supported languages.
func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{
			"**/*.py",
			"**/*.js",
			"**/*.jsx",
			"**/*.mjs",
			"**/*.cjs",
			"**/*.ts",
			"**/*.tsx",
		}
	}

	// Default excludes for common non-source directories
	defaultExcludes := []string{
		"**/.git/**",
		"**/__pycache__/**",
		"**/*.pyc",
		"**/node_modules/**",
		"**/venv/**",
		"**/.venv/**",
		"**/dist/**",
		"**/build/**",
		"**/.idea/**",
		"**/.vscode/**",
		"**/*.min.js",
		"**/*.bundle.js",
	}
	excludes = append(defaultExcludes, excludes...)

	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// Discover walks the tree rooted at root and returns the ingestion inputs:
// every included file with a detectable language, its text loaded. A root
// that is itself a file yields at most that one file. Paths in the result
// are relative to root with forward slashes.
func (w *Walker) Discover(root string) ([]File, error) {
	var files []File

	err := w.Walk(root, func(path string) error {
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			relPath = filepath.Base(path)
		}
		relPath = filepath.ToSlash(relPath)

		lang, ok := parser.DetectLanguage(relPath)
		if !ok {
			return nil
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		files = append(files, File{
			Path:     relPath,
			Language: lang,
			Source:   source,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// Walk traverses the directory tree rooted at root, calling fn for each file
// that matches the include patterns and does not match the exclude patterns.
// A file root is matched against the patterns by its base name.
func (w *Walker) Walk(root string, fn func(path string) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		name := filepath.Base(root)
		if !w.isExcluded(name) && w.isIncluded(name) {
			return fn(root)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		// Normalize to forward slashes for pattern matching
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if w.shouldExcludeDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if w.isExcluded(relPath) {
			return nil
		}

		if w.isIncluded(relPath) {
			return fn(path)
		}

		return nil
	})
}

func (w *Walker) shouldExcludeDir(relPath string) bool {
	// Check directory exclusion patterns (with trailing slash)
	dirPath := relPath + "/"
	for _, pattern := range w.excludes {
		matched, _ := doublestar.Match(pattern, dirPath)
		if matched {
			return true
		}
		// Also check if the dir itself matches (e.g., "**/.git/**" should match ".git")
		matched, _ = doublestar.Match(pattern, relPath)
		if matched {
			return true
		}
	}
	return false
}

func (w *Walker) isExcluded(relPath string) bool {
	for _, pattern := range w.excludes {
		matched, _ := doublestar.Match(pattern, relPath)
		if matched {
			return true
		}
	}
	return false
}

func (w *Walker) isIncluded(relPath string) bool {
	for _, pattern := range w.includes {
		matched, _ := doublestar.Match(pattern, relPath)
		if matched {
			return true
		}
	}
	return false
}
