package chart

import (
	"context"
	"errors"
	"strings"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
)

var errNoResolver = errors.New("no version resolver")

// CheckUpdate compares decl's pinned version with the latest one r can
// find and returns an "update available" warning when they differ after
// dropping a leading "v" from both. Local charts, unresolvable charts, and
// up-to-date charts yield no warning.
func CheckUpdate(ctx context.Context, r VersionResolver, decl config.ChartDeclaration, scope Scope) (string, bool) {
	if r == nil || decl.Name == "" || decl.Version == "" || decl.Repo == "" {
		return "", false
	}

	latest, err := r.Resolve(ctx, decl.Name, decl.Repo)
	if err != nil || latest == "" {
		return "", false
	}

	if strings.TrimLeft(latest, "v") == strings.TrimLeft(decl.Version, "v") {
		return "", false
	}
	return scope.message(decl, "update available: %s -> %s", decl.Version, latest), true
}
