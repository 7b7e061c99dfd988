package config

import "fmt"

// ManifestFile is the kustomize manifest that owns helmCharts declarations.
const ManifestFile = "kustomization.yaml"

// ChartDeclaration is one entry of a kustomization's helmCharts list.
// Fields mirror kustomize's HelmChart inflation generator keys.
// Absent, null, and empty string fields are all represented as "".
type ChartDeclaration struct {
	Name        string
	Repo        string
	Version     string
	Namespace   string
	IncludeCRDs CRDFlag
	ValuesFile  string
	ReleaseName string
}

// IsLocal reports whether the chart is vendored in the repository, i.e. it
// declares neither a repo nor a version.
func (c ChartDeclaration) IsLocal() bool {
	return c.Repo == "" && c.Version == ""
}

// ExpectedValuesFile builds values/<name>-<version>.yaml.
func ExpectedValuesFile(name, version string) string {
	return fmt.Sprintf("values/%s-%s.yaml", name, version)
}

// CRDFlag keeps the includeCRDs key exactly as found: whether the key exists
// and its decoded scalar (bool, string, int, ... or nil for null).
type CRDFlag struct {
	Present bool
	Value   any
}

// CRDsIncluded returns a flag holding boolean true.
func CRDsIncluded() CRDFlag {
	return CRDFlag{Present: true, Value: true}
}

// IsTrue reports whether the key is present and holds boolean true.
// The string "true" does not count.
func (f CRDFlag) IsTrue() bool {
	b, ok := f.Value.(bool)
	return f.Present && ok && b
}

// IsEmpty reports whether the key is absent, null, or an empty string.
func (f CRDFlag) IsEmpty() bool {
	if !f.Present || f.Value == nil {
		return true
	}
	s, ok := f.Value.(string)
	return ok && s == ""
}

// String renders the flag for diagnostics.
func (f CRDFlag) String() string {
	if !f.Present {
		return "<absent>"
	}
	if f.Value == nil {
		return "null"
	}
	if s, ok := f.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(f.Value)
}
