package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
)

func validChart() config.ChartDeclaration {
	return config.ChartDeclaration{
		Name:        "redis",
		Repo:        "https://charts.example.com/",
		Version:     "18.4.0",
		Namespace:   "cache",
		IncludeCRDs: config.CRDsIncluded(),
		ValuesFile:  "values/redis-18.4.0.yaml",
		ReleaseName: "redis",
	}
}

func TestValidate(t *testing.T) {
	scope := Scope{App: "dev/cache", Namespace: "cache"}

	tests := []struct {
		name   string
		mutate func(*config.ChartDeclaration)
		scope  Scope
		want   []string
	}{
		{
			name:   "valid",
			mutate: func(*config.ChartDeclaration) {},
			want:   nil,
		},
		{
			name: "local chart",
			mutate: func(c *config.ChartDeclaration) {
				c.Repo, c.Version = "", ""
				c.ValuesFile = "values/anything.yaml"
			},
			want: nil,
		},
		{
			name:   "repo without version",
			mutate: func(c *config.ChartDeclaration) { c.Version = "" },
			want:   []string{"dev/cache: Chart 'redis' - repo and version must both exist or both be absent"},
		},
		{
			name:   "version without repo",
			mutate: func(c *config.ChartDeclaration) { c.Repo = "" },
			want:   []string{"dev/cache: Chart 'redis' - repo and version must both exist or both be absent"},
		},
		{
			name:   "namespace mismatch",
			mutate: func(c *config.ChartDeclaration) { c.Namespace = "default" },
			want:   []string{"dev/cache: Chart 'redis' - namespace must be 'cache' (found: 'default')"},
		},
		{
			name:   "namespace free when manifest has none",
			mutate: func(c *config.ChartDeclaration) { c.Namespace = "default" },
			scope:  Scope{App: "dev/cache"},
			want:   nil,
		},
		{
			name:   "includeCRDs false",
			mutate: func(c *config.ChartDeclaration) { c.IncludeCRDs = config.CRDFlag{Present: true, Value: false} },
			want:   []string{"dev/cache: Chart 'redis' - includeCRDs must be true"},
		},
		{
			name:   "includeCRDs string true",
			mutate: func(c *config.ChartDeclaration) { c.IncludeCRDs = config.CRDFlag{Present: true, Value: "true"} },
			want:   []string{"dev/cache: Chart 'redis' - includeCRDs must be true"},
		},
		{
			name:   "includeCRDs absent",
			mutate: func(c *config.ChartDeclaration) { c.IncludeCRDs = config.CRDFlag{} },
			want:   []string{"dev/cache: Chart 'redis' missing 'includeCRDs'"},
		},
		{
			name:   "includeCRDs null",
			mutate: func(c *config.ChartDeclaration) { c.IncludeCRDs = config.CRDFlag{Present: true} },
			want: []string{
				"dev/cache: Chart 'redis' missing 'includeCRDs'",
				"dev/cache: Chart 'redis' - includeCRDs must be true",
			},
		},
		{
			name:   "wrong values file",
			mutate: func(c *config.ChartDeclaration) { c.ValuesFile = "values/redis.yaml" },
			want:   []string{"dev/cache: Chart 'redis' - valuesFile must be 'values/redis-18.4.0.yaml' (found: 'values/redis.yaml')"},
		},
		{
			name: "every field missing",
			mutate: func(c *config.ChartDeclaration) {
				*c = config.ChartDeclaration{Repo: "https://charts.example.com/"}
			},
			scope: Scope{App: "dev/cache", Namespace: "cache", Index: 2},
			want: []string{
				"dev/cache: Chart 'chart-2' - repo and version must both exist or both be absent",
				"dev/cache: Chart 'chart-2' missing 'name'",
				"dev/cache: Chart 'chart-2' missing 'releaseName'",
				"dev/cache: Chart 'chart-2' missing 'namespace'",
				"dev/cache: Chart 'chart-2' missing 'includeCRDs'",
				"dev/cache: Chart 'chart-2' missing 'valuesFile'",
			},
		},
		{
			name: "rules do not short-circuit",
			mutate: func(c *config.ChartDeclaration) {
				c.Version = ""
				c.Namespace = "default"
				c.IncludeCRDs = config.CRDFlag{Present: true, Value: false}
			},
			want: []string{
				"dev/cache: Chart 'redis' - repo and version must both exist or both be absent",
				"dev/cache: Chart 'redis' - namespace must be 'cache' (found: 'default')",
				"dev/cache: Chart 'redis' - includeCRDs must be true",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decl := validChart()
			tc.mutate(&decl)
			s := tc.scope
			if s.App == "" {
				s = scope
			}

			res := Validate(decl, s)
			assert.Equal(t, tc.want, res.Errors)
			assert.Equal(t, len(tc.want) == 0, res.OK())
		})
	}
}

func TestScope_Label(t *testing.T) {
	s := Scope{Index: 3}
	assert.Equal(t, "redis", s.Label(config.ChartDeclaration{Name: "redis"}))
	assert.Equal(t, "chart-3", s.Label(config.ChartDeclaration{}))
}

func TestValidate_RemovingRequiredFieldsNeverHelps(t *testing.T) {
	scope := Scope{App: "dev/cache", Namespace: "cache"}
	strip := []func(*config.ChartDeclaration){
		func(c *config.ChartDeclaration) { c.ReleaseName = "" },
		func(c *config.ChartDeclaration) { c.ValuesFile = "" },
		func(c *config.ChartDeclaration) { c.IncludeCRDs = config.CRDFlag{} },
		func(c *config.ChartDeclaration) { c.Namespace = "" },
		func(c *config.ChartDeclaration) { c.Version = "" },
		func(c *config.ChartDeclaration) { c.Name = "" },
	}

	decl := validChart()
	prev := len(Validate(decl, scope).Errors)
	assert.Zero(t, prev)
	for i, remove := range strip {
		remove(&decl)
		got := len(Validate(decl, scope).Errors)
		assert.GreaterOrEqual(t, got, prev, "after removing field %d", i)
		prev = got
	}
}
