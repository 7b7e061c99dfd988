package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
)

// DefaultEnvironments are the top-level directories holding one application
// per child directory.
var DefaultEnvironments = []string{"dev", "production"}

// gitCommand is replaced in tests.
var gitCommand = "git"

// RepoRoot returns the top level of the git work tree containing dir, or
// dir itself when git is unavailable or dir is not inside a work tree.
func RepoRoot(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, gitCommand, "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return dir
	}
	root := strings.TrimSpace(string(out))
	if root == "" {
		return dir
	}
	return filepath.Clean(root)
}

// AppDirsFromFiles maps changed files to the application directories that
// own them: the nearest ancestor holding a kustomization.yaml, never the
// repository root itself. Relative paths are taken relative to root. The
// result is de-duplicated and sorted.
func AppDirsFromFiles(root string, files []string) []string {
	root = filepath.Clean(root)
	seen := make(map[string]struct{})

	for _, f := range files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		path = filepath.Clean(path)

		candidate := path
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			candidate = filepath.Dir(path)
		}

		for candidate != root && candidate != filepath.Dir(candidate) {
			if hasManifest(candidate) {
				seen[candidate] = struct{}{}
				break
			}
			candidate = filepath.Dir(candidate)
		}
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// AllAppDirs lists every direct child of root/<env> holding a
// kustomization.yaml, environments in the given order and children sorted by
// name. Missing environment directories are skipped.
func AllAppDirs(root string, envs []string) ([]string, error) {
	var dirs []string
	for _, env := range envs {
		envPath := filepath.Join(root, env)
		entries, err := os.ReadDir(envPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", envPath, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(envPath, e.Name())
			if hasManifest(dir) {
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs, nil
}

// AppName returns dir relative to root with forward slashes, the name used
// to attribute messages.
func AppName(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(dir)
	}
	return filepath.ToSlash(rel)
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, config.ManifestFile))
	return err == nil && !info.IsDir()
}
