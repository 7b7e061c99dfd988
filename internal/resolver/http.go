package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
	"helm.sh/helm/v3/pkg/repo"
	"sigs.k8s.io/yaml"
)

// DefaultIndexTimeout bounds a single index.yaml download.
const DefaultIndexTimeout = 10 * time.Second

var errNoEntryVersion = errors.New("index entry has no version")

// IndexSource resolves charts from classic Helm repositories by reading
// their index.yaml.
type IndexSource struct {
	client    *http.Client
	userAgent string
}

// NewIndexSource returns an index source with the given per-request timeout.
// Zero values select DefaultIndexTimeout and DefaultUserAgent.
func NewIndexSource(timeout time.Duration, userAgent string) *IndexSource {
	if timeout <= 0 {
		timeout = DefaultIndexTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &IndexSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// IndexURL returns the index.yaml location for a repository URL.
func IndexURL(repoURL string) string {
	return strings.TrimRight(repoURL, "/") + "/index.yaml"
}

// Latest returns the first listed version of chartName. Repositories publish
// entries newest first, so the order is trusted as is.
func (s *IndexSource) Latest(ctx context.Context, chartName, repoURL string) (string, error) {
	url := IndexURL(repoURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fail(ReasonTransport, chartName, repoURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fail(ReasonTransport, chartName, repoURL, fmt.Errorf("fetching %s: %w", url, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fail(ReasonStatus, chartName, repoURL, fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fail(ReasonTransport, chartName, repoURL, fmt.Errorf("reading %s: %w", url, err))
	}

	return latestFromIndex(data, chartName, repoURL)
}

// indexEntries holds only the entries table of an index.yaml. Entries of
// other charts stay undecoded so a malformed neighbour cannot break lookup.
type indexEntries struct {
	Entries map[string]yamlv3.Node `yaml:"entries"`
}

func latestFromIndex(data []byte, chartName, repoURL string) (string, error) {
	var index indexEntries
	if err := yamlv3.Unmarshal(data, &index); err != nil {
		return "", fail(ReasonParse, chartName, repoURL, fmt.Errorf("parsing index: %w", err))
	}

	versions, ok := index.Entries[chartName]
	if !ok || versions.Kind == yamlv3.ScalarNode && versions.Tag == "!!null" {
		return "", fail(ReasonNotFound, chartName, repoURL, fmt.Errorf("chart %q not in index", chartName))
	}
	if versions.Kind != yamlv3.SequenceNode {
		return "", fail(ReasonParse, chartName, repoURL, fmt.Errorf("entries for %q are not a list", chartName))
	}
	if len(versions.Content) == 0 {
		return "", fail(ReasonNotFound, chartName, repoURL, fmt.Errorf("chart %q not in index", chartName))
	}

	version, err := entryVersion(versions.Content[0])
	if err != nil {
		return "", fail(ReasonNotFound, chartName, repoURL, err)
	}
	return version, nil
}

// entryVersion reads the version of one index entry. String versions go
// through helm's ChartVersion; numeric scalars such as an unquoted 2.0 or
// 1.10 are taken as written.
func entryVersion(entry *yamlv3.Node) (string, error) {
	if entry.Kind != yamlv3.MappingNode {
		return "", errNoEntryVersion
	}

	var node *yamlv3.Node
	for i := 0; i+1 < len(entry.Content); i += 2 {
		if entry.Content[i].Value == "version" {
			node = entry.Content[i+1]
			break
		}
	}
	if node == nil || node.Kind != yamlv3.ScalarNode || node.Value == "" || node.Tag == "!!null" {
		return "", errNoEntryVersion
	}
	if node.Tag != "!!str" {
		return node.Value, nil
	}

	if data, err := yamlv3.Marshal(entry); err == nil {
		var cv repo.ChartVersion
		if err := yaml.Unmarshal(data, &cv); err == nil && cv.Metadata != nil && cv.Version != "" {
			return cv.Version, nil
		}
	}
	return node.Value, nil
}
