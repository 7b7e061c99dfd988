// Package checker runs the chart checks over application directories and
// gathers their fixes, warnings, and errors into one report.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/build"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/chart"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/discovery"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/manifest"
)

// Builder verifies that an application directory renders.
type Builder interface {
	Build(ctx context.Context, dir string) error
}

// Options selects which checks run.
type Options struct {
	// AutoFix repairs declarations and saves the manifest before validating.
	AutoFix bool
	// CheckUpdates warns about charts with a newer published version.
	CheckUpdates bool
	// SkipBuild disables build verification.
	SkipBuild bool
	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// Checker checks application directories one at a time.
type Checker struct {
	opts     Options
	resolver chart.VersionResolver
	fixer    *chart.Fixer
	builder  Builder
	logger   *zap.Logger
	out      io.Writer
}

// New returns a checker. The resolver serves both auto-fix and update
// checks, so a chart referenced from several manifests is looked up once.
func New(opts Options, resolver chart.VersionResolver, builder Builder, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Checker{
		opts:     opts,
		resolver: resolver,
		fixer:    chart.NewFixer(resolver),
		builder:  builder,
		logger:   logger,
		out:      out,
	}
}

// Run checks every directory in order and returns the combined report.
// Directories are named relative to root in messages.
func (c *Checker) Run(ctx context.Context, root string, dirs []string) *Report {
	report := &Report{}
	c.printf("Checking %d applications...\n", len(dirs))
	for _, dir := range dirs {
		report.Merge(c.CheckApp(ctx, root, dir))
	}
	return report
}

// CheckApp checks the manifest in dir. A directory without a manifest
// yields an empty report.
func (c *Checker) CheckApp(ctx context.Context, root, dir string) Report {
	var report Report

	path := filepath.Join(dir, config.ManifestFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return report
	}

	app := discovery.AppName(root, dir)
	log := c.logger.With(zap.String("app", app))
	c.printf("\n%s\n", app)

	m, err := manifest.Load(path)
	if err != nil {
		log.Warn("loading manifest", zap.Error(err))
		report.Errors = append(report.Errors, app+": Failed to load kustomization.yaml")
		return report
	}
	charts, err := m.Charts()
	if err != nil {
		log.Warn("reading helmCharts", zap.Error(err))
		report.Errors = append(report.Errors, app+": Failed to load kustomization.yaml")
		return report
	}

	if len(charts) == 0 {
		c.printf("  No helm charts\n")
		c.build(ctx, app, dir, &report)
		return report
	}

	modified := false
	for i := range charts {
		decl := charts[i]
		scope := chart.Scope{App: app, Namespace: m.Namespace(), Index: i}
		c.printf("  Chart: %s\n", scope.Label(decl))

		if c.opts.AutoFix {
			out := c.fixer.Fix(ctx, &decl, scope)
			report.Fixes = append(report.Fixes, out.Fixes...)
			report.Errors = append(report.Errors, out.Errors...)
			if out.Modified {
				if err := m.SetChart(i, decl); err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("%s: Chart '%s' - %v", app, scope.Label(decl), err))
				} else {
					modified = true
				}
			}
		}

		res := chart.Validate(decl, scope)
		report.Errors = append(report.Errors, res.Errors...)
		if !res.OK() {
			continue
		}

		if c.opts.CheckUpdates && decl.Version != "" {
			if warning, ok := chart.CheckUpdate(ctx, c.resolver, decl, scope); ok {
				report.Warnings = append(report.Warnings, warning)
			}
		}
	}

	if modified {
		if err := m.Save(); err != nil {
			log.Error("saving manifest", zap.Error(err))
			report.Errors = append(report.Errors, fmt.Sprintf("%s: Failed to save %s: %v", app, config.ManifestFile, err))
		} else {
			c.printf("  Fixed and saved %s\n", config.ManifestFile)
		}
	}

	c.build(ctx, app, dir, &report)
	return report
}

func (c *Checker) build(ctx context.Context, app, dir string, report *Report) {
	if c.opts.SkipBuild || c.builder == nil {
		return
	}
	err := c.builder.Build(ctx, dir)
	if err == nil {
		return
	}

	output := err.Error()
	var berr *build.Error
	if errors.As(err, &berr) {
		output = berr.Output
	}
	report.Errors = append(report.Errors, fmt.Sprintf("%s: Kustomize build failed\n%s", app, output))
}

func (c *Checker) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
