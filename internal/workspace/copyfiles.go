package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// copyGlobs copies files matching the given glob patterns from srcRoot into
// dstRoot, preserving relative paths and file modes. Patterns support
// doublestar globs ("**/.env", "config/*.local"). Missing matches are not an
// error; worktrees stay usable without the extra files.
func copyGlobs(srcRoot, dstRoot string, patterns []string) error {
	srcFS := os.DirFS(srcRoot)
	var firstErr error
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(srcFS, pattern)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("glob %q: %w", pattern, err)
			}
			continue
		}
		for _, rel := range matches {
			if err := copyEntry(srcFS, rel, srcRoot, dstRoot); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func copyEntry(srcFS fs.FS, rel, srcRoot, dstRoot string) error {
	info, err := fs.Stat(srcFS, rel)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return nil
	}

	dst := filepath.Join(dstRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", rel, err)
	}

	src, err := os.Open(filepath.Join(srcRoot, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return out.Close()
}
