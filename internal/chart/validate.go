// Package chart checks and repairs helmCharts declarations against the
// repository conventions: every chart pins its namespace to the owning
// manifest, renders CRDs, and reads values from values/<name>-<version>.yaml.
package chart

import (
	"fmt"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
)

// Scope identifies where a declaration lives.
type Scope struct {
	// App names the application directory, used to attribute messages.
	App string
	// Namespace is the owning manifest's top-level namespace ("" when unset).
	Namespace string
	// Index is the position of the declaration in helmCharts.
	Index int
}

// Label returns the name used for decl in messages.
func (s Scope) Label(decl config.ChartDeclaration) string {
	if decl.Name != "" {
		return decl.Name
	}
	return fmt.Sprintf("chart-%d", s.Index)
}

func (s Scope) message(decl config.ChartDeclaration, format string, args ...any) string {
	return fmt.Sprintf("%s: Chart '%s' ", s.App, s.Label(decl)) + fmt.Sprintf(format, args...)
}

// Result holds the violations found in one declaration.
type Result struct {
	Errors []string
}

// OK reports whether the declaration passed every rule.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Validate checks decl against every rule and reports all violations.
func Validate(decl config.ChartDeclaration, scope Scope) Result {
	var res Result
	add := func(format string, args ...any) {
		res.Errors = append(res.Errors, scope.message(decl, format, args...))
	}

	if (decl.Repo == "") != (decl.Version == "") {
		add("- repo and version must both exist or both be absent")
	}

	for _, f := range []struct {
		key   string
		empty bool
	}{
		{"name", decl.Name == ""},
		{"releaseName", decl.ReleaseName == ""},
		{"namespace", decl.Namespace == ""},
		{"includeCRDs", decl.IncludeCRDs.IsEmpty()},
		{"valuesFile", decl.ValuesFile == ""},
	} {
		if f.empty {
			add("missing '%s'", f.key)
		}
	}

	if scope.Namespace != "" && decl.Namespace != "" && decl.Namespace != scope.Namespace {
		add("- namespace must be '%s' (found: '%s')", scope.Namespace, decl.Namespace)
	}

	if decl.IncludeCRDs.Present && !decl.IncludeCRDs.IsTrue() {
		add("- includeCRDs must be true")
	}

	if decl.Version != "" && decl.ValuesFile != "" {
		if want := config.ExpectedValuesFile(scope.Label(decl), decl.Version); decl.ValuesFile != want {
			add("- valuesFile must be '%s' (found: '%s')", want, decl.ValuesFile)
		}
	}

	return res
}
