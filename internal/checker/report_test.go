package checker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func withoutColor(t *testing.T) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })
}

func TestReport_PrintPassed(t *testing.T) {
	withoutColor(t)
	sep := strings.Repeat("=", 80)

	r := &Report{
		Fixes:    []string{"dev/cache: Chart 'redis' - set includeCRDs: true"},
		Warnings: []string{"dev/cache: Chart 'redis' update available: 18.3.0 -> 18.4.0"},
	}
	var buf bytes.Buffer
	r.Print(&buf)

	want := "\n" + sep + "\nFIXES APPLIED:\n  dev/cache: Chart 'redis' - set includeCRDs: true\n" +
		"\n" + sep + "\nWARNINGS:\n  dev/cache: Chart 'redis' update available: 18.3.0 -> 18.4.0\n" +
		"\n" + sep + "\nPASSED - All checks successful\n"
	assert.Equal(t, want, buf.String())
	assert.False(t, r.Failed())
}

func TestReport_PrintFailed(t *testing.T) {
	withoutColor(t)
	sep := strings.Repeat("=", 80)

	r := &Report{Errors: []string{"dev/a: Failed to load kustomization.yaml", "dev/b: Kustomize build failed\nboom"}}
	var buf bytes.Buffer
	r.Print(&buf)

	want := "\n" + sep + "\nFAILED - Errors found:\n" +
		"  dev/a: Failed to load kustomization.yaml\n" +
		"  dev/b: Kustomize build failed\nboom\n"
	assert.Equal(t, want, buf.String())
	assert.True(t, r.Failed())
}

func TestReport_Merge(t *testing.T) {
	r := &Report{Fixes: []string{"f1"}}
	r.Merge(Report{Fixes: []string{"f2"}, Warnings: []string{"w"}, Errors: []string{"e"}})

	assert.Equal(t, []string{"f1", "f2"}, r.Fixes)
	assert.Equal(t, []string{"w"}, r.Warnings)
	assert.Equal(t, []string{"e"}, r.Errors)
}
