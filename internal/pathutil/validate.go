// Package pathutil confines client-supplied export file names to the
// configured export directory.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a full path to .../<parent>/<basename> for logs and
// error messages. "/srv/simdash/exports/run1/series.csv" becomes
// ".../run1/series.csv".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ResolveExportPath resolves name against dir and returns the absolute file
// path to write. Relative names are joined to dir; absolute names must already
// point inside it. Symlinks are followed before the check, so a link inside
// dir cannot lead outside it. The name must address a file below dir, not dir
// itself. Missing parent directories are created with mode 0700.
func ResolveExportPath(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("path validation failed: no export directory configured")
	}
	if name == "" {
		return "", fmt.Errorf("path validation failed: path is empty")
	}
	if strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("path validation failed: path contains null byte")
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("path validation failed: cannot resolve export directory: %w", err)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	resolvedRoot, err := resolveExisting(root)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	resolved, err := resolveExisting(path)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	if !below(resolved, resolvedRoot) {
		return "", fmt.Errorf("path validation failed: %q is outside the export directory", RedactPath(path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	return path, nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of path
// and re-appends the missing tail. The export file and its new parent
// directories usually do not exist yet.
func resolveExisting(path string) (string, error) {
	var tail []string
	for cur := path; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("cannot resolve %s", RedactPath(path))
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

// below reports whether path lies strictly inside base.
func below(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
