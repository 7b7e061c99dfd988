package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/resolver"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"chartcheck"}, args...))
	return out.String(), err
}

func newChartRepo(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.yaml" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("apiVersion: v1\nentries:\n  redis:\n    - name: redis\n      version: 18.4.0\n"))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func writeKustomization(t *testing.T, root, app, content string) string {
	t.Helper()
	dir := filepath.Join(root, app)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "kustomization.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func exitCode(err error) int {
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

func TestCheck_NothingToCheck(t *testing.T) {
	out, err := runApp(t, "--root", t.TempDir(), "--skip-build")
	require.NoError(t, err)
	assert.Equal(t, "No application directories to check\n", out)
}

func TestCheck_FixThenPass(t *testing.T) {
	repo := newChartRepo(t)
	root := t.TempDir()
	path := writeKustomization(t, root, "dev/cache", "namespace: cache\nhelmCharts:\n  - name: redis\n    repo: "+repo+"\n    releaseName: redis\n")

	out, err := runApp(t, "--root", root, "--skip-build", "--fix", "dev/cache/kustomization.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Checking 1 applications...")
	assert.Contains(t, out, "FIXES APPLIED:")
	assert.Contains(t, out, "dev/cache: Chart 'redis' - added version: 18.4.0, set valuesFile: values/redis-18.4.0.yaml")
	assert.Contains(t, out, "PASSED - All checks successful")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version: 18.4.0")
	assert.Contains(t, string(data), "includeCRDs: true")
}

func TestCheck_FailsWithExitCode(t *testing.T) {
	root := t.TempDir()
	writeKustomization(t, root, "production/web", "helmCharts:\n  - name: web\n")

	out, err := runApp(t, "check", "--root", root, "--skip-build")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "FAILED - Errors found:")
	assert.Contains(t, out, "production/web: Chart 'web' missing 'releaseName'")
}

func TestCheck_UpdateWarningDoesNotFail(t *testing.T) {
	repo := newChartRepo(t)
	root := t.TempDir()
	writeKustomization(t, root, "dev/cache", `namespace: cache
helmCharts:
  - name: redis
    repo: `+repo+`
    version: 18.3.0
    namespace: cache
    includeCRDs: true
    valuesFile: values/redis-18.3.0.yaml
    releaseName: redis
`)

	out, err := runApp(t, "--root", root, "--skip-build", "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "WARNINGS:")
	assert.Contains(t, out, "dev/cache: Chart 'redis' update available: 18.3.0 -> 18.4.0")
	assert.Contains(t, out, "PASSED - All checks successful")
}

func TestCheck_BadTagPolicy(t *testing.T) {
	_, err := runApp(t, "--root", t.TempDir(), "--tag-policy", "newest")
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	repo := newChartRepo(t)

	out, err := runApp(t, "resolve", "--repo", repo, "redis")
	require.NoError(t, err)
	assert.Equal(t, "18.4.0\n", out)
}

func TestResolve_Failure(t *testing.T) {
	repo := newChartRepo(t)

	_, err := runApp(t, "resolve", "--repo", repo, "mysql")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	_, err = runApp(t, "resolve", "--repo", "ftp://example.com", "redis")
	assert.Equal(t, 1, exitCode(err))
}

func TestResolve_RequiresChart(t *testing.T) {
	_, err := runApp(t, "resolve", "--repo", "https://charts.example.com")
	assert.ErrorIs(t, err, errChartRequired)
}

func TestCheck_FlagsBeforeOrAfterSubcommand(t *testing.T) {
	tests := []struct {
		name string
		args func(root string) []string
	}{
		{name: "after", args: func(root string) []string {
			return []string{"check", "--root", root, "--skip-build", "--fix"}
		}},
		{name: "before", args: func(root string) []string {
			return []string{"--root", root, "--skip-build", "--fix", "check"}
		}},
		{name: "split", args: func(root string) []string {
			return []string{"--fix", "check", "--root", root, "--skip-build"}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newChartRepo(t)
			root := t.TempDir()
			path := writeKustomization(t, root, "dev/cache", "namespace: cache\nhelmCharts:\n  - name: redis\n    repo: "+repo+"\n    releaseName: redis\n")

			out, err := runApp(t, tc.args(root)...)
			require.NoError(t, err)
			assert.Contains(t, out, "dev/cache: Chart 'redis' - added version: 18.4.0, set valuesFile: values/redis-18.4.0.yaml")

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), "version: 18.4.0")
		})
	}
}

func TestResolve_TagPolicyFromApp(t *testing.T) {
	_, err := runApp(t, "--tag-policy", "newest", "resolve", "--repo", "https://charts.example.com", "redis")
	assert.ErrorIs(t, err, resolver.ErrUnknownTagPolicy)
}
