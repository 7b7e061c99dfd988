// Package manifest reads and rewrites kustomization.yaml files while keeping
// key order, comments, and every field it does not own.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/config"
)

// Sentinel errors for manifest parsing.
var (
	ErrEmpty           = errors.New("manifest is empty")
	ErrNotMapping      = errors.New("manifest root must be a mapping")
	ErrChartsNotList   = errors.New("helmCharts must be a list")
	ErrChartNotMap     = errors.New("helmCharts entry must be a mapping")
	ErrChartOutOfRange = errors.New("chart index out of range")
)

const (
	keyNamespace   = "namespace"
	keyHelmCharts  = "helmCharts"
	keyName        = "name"
	keyRepo        = "repo"
	keyVersion     = "version"
	keyIncludeCRDs = "includeCRDs"
	keyValuesFile  = "valuesFile"
	keyReleaseName = "releaseName"

	tagNull = "!!null"
	tagStr  = "!!str"
	tagBool = "!!bool"
)

// Manifest is a parsed kustomization.yaml.
type Manifest struct {
	Path string

	doc  *yaml.Node
	root *yaml.Node
	mode os.FileMode
}

// Load reads and parses the manifest at path. A missing file is reported
// with an error satisfying errors.Is(err, os.ErrNotExist).
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.Path = path
	m.mode = info.Mode().Perm()
	return m, nil
}

// Parse parses manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, ErrEmpty
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.ShortTag() == tagNull {
		return nil, ErrEmpty
	}
	if root.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	return &Manifest{doc: &doc, root: root, mode: 0o644}, nil
}

// Namespace returns the manifest-level namespace, or "" when unset.
func (m *Manifest) Namespace() string {
	return scalarString(lookup(m.root, keyNamespace))
}

// Charts returns the helmCharts declarations in document order. A manifest
// without helmCharts (or with a null list) has no charts.
func (m *Manifest) Charts() ([]config.ChartDeclaration, error) {
	items, err := m.chartNodes()
	if err != nil {
		return nil, err
	}
	charts := make([]config.ChartDeclaration, 0, len(items))
	for i, item := range items {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w (entry %d)", ErrChartNotMap, i)
		}
		charts = append(charts, decodeChart(item))
	}
	return charts, nil
}

// SetChart writes decl back into the i-th helmCharts entry. Only keys whose
// value changed are touched; new keys are appended to the entry. Fields that
// are empty in decl are never removed from the document.
func (m *Manifest) SetChart(i int, decl config.ChartDeclaration) error {
	items, err := m.chartNodes()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(items) {
		return fmt.Errorf("%w: %d", ErrChartOutOfRange, i)
	}
	item := items[i]
	if item.Kind != yaml.MappingNode {
		return fmt.Errorf("%w (entry %d)", ErrChartNotMap, i)
	}

	for _, f := range []struct{ key, value string }{
		{keyName, decl.Name},
		{keyRepo, decl.Repo},
		{keyVersion, decl.Version},
		{keyNamespace, decl.Namespace},
		{keyValuesFile, decl.ValuesFile},
		{keyReleaseName, decl.ReleaseName},
	} {
		if f.value == "" || scalarString(lookup(item, f.key)) == f.value {
			continue
		}
		setScalar(item, f.key, f.value, tagStr)
	}

	current := decodeCRDFlag(lookup(item, keyIncludeCRDs), hasKey(item, keyIncludeCRDs))
	if decl.IncludeCRDs.IsTrue() && !current.IsTrue() {
		setScalar(item, keyIncludeCRDs, "true", tagBool)
	}
	return nil
}

// Bytes encodes the manifest with two-space indentation.
func (m *Manifest) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.doc); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the manifest back to Path, keeping the original file mode.
func (m *Manifest) Save() error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.Path, data, m.mode); err != nil {
		return fmt.Errorf("writing %s: %w", m.Path, err)
	}
	return nil
}

func (m *Manifest) chartNodes() ([]*yaml.Node, error) {
	list := lookup(m.root, keyHelmCharts)
	if list == nil || (list.Kind == yaml.ScalarNode && list.ShortTag() == tagNull) {
		return nil, nil
	}
	if list.Kind != yaml.SequenceNode {
		return nil, ErrChartsNotList
	}
	return list.Content, nil
}

func decodeChart(item *yaml.Node) config.ChartDeclaration {
	return config.ChartDeclaration{
		Name:        scalarString(lookup(item, keyName)),
		Repo:        scalarString(lookup(item, keyRepo)),
		Version:     scalarString(lookup(item, keyVersion)),
		Namespace:   scalarString(lookup(item, keyNamespace)),
		IncludeCRDs: decodeCRDFlag(lookup(item, keyIncludeCRDs), hasKey(item, keyIncludeCRDs)),
		ValuesFile:  scalarString(lookup(item, keyValuesFile)),
		ReleaseName: scalarString(lookup(item, keyReleaseName)),
	}
}

func decodeCRDFlag(n *yaml.Node, present bool) config.CRDFlag {
	if !present {
		return config.CRDFlag{}
	}
	if n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == tagNull) {
		return config.CRDFlag{Present: true}
	}
	var v any
	if err := n.Decode(&v); err != nil {
		v = n.Value
	}
	return config.CRDFlag{Present: true, Value: v}
}

// lookup returns the value node for key in a mapping node, or nil.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	return lookup(mapping, key) != nil
}

// scalarString returns the text of a non-null scalar node and "" otherwise.
func scalarString(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() == tagNull {
		return ""
	}
	return n.Value
}

// setScalar replaces the value of key in place, keeping attached comments,
// or appends the key when the mapping does not have it yet.
func setScalar(mapping *yaml.Node, key, value, tag string) {
	if v := lookup(mapping, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = tag
		v.Value = value
		v.Style = 0
		v.Content = nil
		v.Alias = nil
		return
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}
