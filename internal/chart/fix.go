package chart

import (
	"context"
	"strings"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
)

// VersionResolver returns the latest version of a chart in a repository.
type VersionResolver interface {
	Resolve(ctx context.Context, chartName, repoRef string) (string, error)
}

// FixOutcome describes what Fix changed.
type FixOutcome struct {
	Modified bool
	Fixes    []string
	Errors   []string
}

// Fixer rewrites declarations into their conventional shape.
type Fixer struct {
	resolver VersionResolver
}

// NewFixer returns a fixer resolving missing versions with r. A nil r makes
// every version lookup fail.
func NewFixer(r VersionResolver) *Fixer {
	return &Fixer{resolver: r}
}

// Fix repairs decl in place: it pins the namespace to the manifest's,
// enables CRDs, fills a missing version for repository charts, and points
// valuesFile at values/<name>-<version>.yaml. Running Fix on its own output
// changes nothing.
func (f *Fixer) Fix(ctx context.Context, decl *config.ChartDeclaration, scope Scope) FixOutcome {
	var out FixOutcome
	fixed := func(parts ...string) {
		out.Fixes = append(out.Fixes, scope.message(*decl, "- %s", strings.Join(parts, ", ")))
		out.Modified = true
	}

	if scope.Namespace != "" && decl.Namespace != scope.Namespace {
		if decl.Namespace != "" {
			fixed("changed namespace: " + decl.Namespace + " -> " + scope.Namespace)
		} else {
			fixed("added namespace: " + scope.Namespace)
		}
		decl.Namespace = scope.Namespace
	}

	if !decl.IncludeCRDs.IsTrue() {
		decl.IncludeCRDs = config.CRDsIncluded()
		fixed("set includeCRDs: true")
	}

	var pending []string
	if decl.Repo != "" && decl.Version == "" {
		latest, err := f.resolve(ctx, decl)
		if err != nil || latest == "" {
			out.Errors = append(out.Errors, scope.message(*decl, "- failed to fetch version"))
		} else {
			decl.Version = latest
			pending = append(pending, "added version: "+latest)
		}
	}

	if decl.Version != "" {
		want := config.ExpectedValuesFile(scope.Label(*decl), decl.Version)
		if decl.ValuesFile != want {
			if decl.ValuesFile != "" {
				pending = append(pending, "changed valuesFile: "+decl.ValuesFile+" -> "+want)
			} else {
				pending = append(pending, "set valuesFile: "+want)
			}
			decl.ValuesFile = want
		}
	}

	if len(pending) > 0 {
		fixed(pending...)
	}
	return out
}

func (f *Fixer) resolve(ctx context.Context, decl *config.ChartDeclaration) (string, error) {
	if f.resolver == nil {
		return "", errNoResolver
	}
	return f.resolver.Resolve(ctx, decl.Name, decl.Repo)
}
