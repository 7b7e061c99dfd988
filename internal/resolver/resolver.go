// Package resolver finds the latest published version of a Helm chart from
// an HTTP chart repository index or from the tags of an OCI registry.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Reason classifies why a version could not be resolved.
type Reason string

// Resolution failure reasons.
const (
	ReasonUnsupported Reason = "unsupported"
	ReasonTransport   Reason = "transport"
	ReasonStatus      Reason = "status"
	ReasonParse       Reason = "parse"
	ReasonNotFound    Reason = "not-found"
	ReasonAuth        Reason = "auth"
	ReasonNoTags      Reason = "no-tags"
)

// DefaultUserAgent is sent with every index, token, and tag request.
const DefaultUserAgent = "helm-chart-validator/1.0"

var (
	errUnsupportedScheme = errors.New("unknown protocol")
	errNoSource          = errors.New("no source configured")
)

// Failure is the error returned for every unresolvable chart version.
type Failure struct {
	Reason Reason
	Chart  string
	Ref    string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("resolving %s from %s: %s", f.Chart, f.Ref, f.Reason)
	}
	return fmt.Sprintf("resolving %s from %s: %s: %v", f.Chart, f.Ref, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ReasonOf returns the failure reason carried by err, or "" when err is not
// a resolution failure.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}

func fail(reason Reason, chart, ref string, err error) *Failure {
	return &Failure{Reason: reason, Chart: chart, Ref: ref, Err: err}
}

// Source looks up the latest version of one chart in one kind of repository.
type Source interface {
	Latest(ctx context.Context, chartName, repoRef string) (string, error)
}

type cacheKey struct {
	chart string
	ref   string
}

type cachedResult struct {
	version string
	err     error
}

// Resolver dispatches on the repository scheme and memoizes every outcome,
// failures included, for the lifetime of the instance. It is not safe for
// concurrent use.
type Resolver struct {
	http   Source
	oci    Source
	logger *zap.Logger
	cache  map[cacheKey]cachedResult
}

// New returns a resolver using httpSrc for http(s):// references and ociSrc
// for oci:// references. A nil logger disables logging.
func New(httpSrc, ociSrc Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		http:   httpSrc,
		oci:    ociSrc,
		logger: logger,
		cache:  make(map[cacheKey]cachedResult),
	}
}

// Resolve returns the latest version of chartName in repoRef. Any returned
// error is a *Failure; repeated calls with the same arguments reuse the first
// outcome without touching the network.
func (r *Resolver) Resolve(ctx context.Context, chartName, repoRef string) (string, error) {
	key := cacheKey{chart: chartName, ref: repoRef}
	if res, ok := r.cache[key]; ok {
		return res.version, res.err
	}

	log := r.logger.With(zap.String("chart", chartName), zap.String("repo", repoRef))
	log.Debug("fetching chart version")

	version, err := r.lookup(ctx, chartName, repoRef)
	if err != nil {
		log.Warn("resolution failed", zap.String("reason", string(ReasonOf(err))), zap.Error(err))
	} else {
		log.Debug("resolved", zap.String("version", version))
	}

	r.cache[key] = cachedResult{version: version, err: err}
	return version, err
}

func (r *Resolver) lookup(ctx context.Context, chartName, repoRef string) (string, error) {
	var src Source
	switch {
	case strings.HasPrefix(repoRef, "oci://"):
		src = r.oci
	case strings.HasPrefix(repoRef, "http://"), strings.HasPrefix(repoRef, "https://"):
		src = r.http
	default:
		return "", fail(ReasonUnsupported, chartName, repoRef, errUnsupportedScheme)
	}
	if src == nil {
		return "", fail(ReasonUnsupported, chartName, repoRef, errNoSource)
	}

	version, err := src.Latest(ctx, chartName, repoRef)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return "", f
		}
		return "", fail(ReasonTransport, chartName, repoRef, err)
	}
	return version, nil
}
