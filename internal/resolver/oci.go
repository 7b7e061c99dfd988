package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"go.uber.org/zap"
)

// Docker Hub endpoints.
const (
	DockerHubRegistry    = "registry-1.docker.io"
	DockerHubAuthURL     = "https://auth.docker.io/token"
	DockerHubAuthService = "registry.docker.io"
)

// Defaults for the OCI source.
const (
	DefaultAuthTimeout       = 20 * time.Second
	DefaultAuthAttempts uint = 2
	DefaultAuthInterval      = time.Second
	DefaultTagsTimeout       = 10 * time.Second
)

var (
	errNoToken      = errors.New("no token in response")
	errAuthStatus   = errors.New("token request failed")
	errNoTags       = errors.New("no tags found")
	errNoVersionTag = errors.New("no version tags found")
	errMissingHost  = errors.New("missing registry host")
)

// OCIRef locates a chart's repository inside an OCI registry.
type OCIRef struct {
	Registry   string
	Repository string
	DockerHub  bool
}

func (r OCIRef) String() string {
	return r.Registry + "/" + r.Repository
}

// ParseOCIRef turns an oci://host/path reference plus a chart name into the
// registry and repository to query. Any host containing "docker.io" is
// rewritten to the Docker Hub API registry, where single-segment
// repositories gain the "library/" namespace.
func ParseOCIRef(repoRef, chartName string) (OCIRef, error) {
	u, err := url.Parse(repoRef)
	if err != nil {
		return OCIRef{}, fmt.Errorf("parsing %s: %w", repoRef, err)
	}
	if u.Scheme != "oci" {
		return OCIRef{}, fmt.Errorf("%w: %s", errUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return OCIRef{}, fmt.Errorf("%w: %s", errMissingHost, repoRef)
	}

	repository := chartName
	if p := strings.Trim(u.Path, "/"); p != "" {
		repository = p + "/" + chartName
	}

	ref := OCIRef{Registry: u.Host, Repository: repository}
	if strings.Contains(u.Host, "docker.io") {
		ref.Registry = DockerHubRegistry
		ref.DockerHub = true
		if !strings.Contains(repository, "/") {
			ref.Repository = "library/" + repository
		}
	}
	return ref, nil
}

// TagLister lists the tags of one repository. An empty token means
// anonymous access.
type TagLister interface {
	ListTags(ctx context.Context, ref OCIRef, token string) ([]string, error)
}

// OCISource resolves charts stored as OCI artifacts by listing repository
// tags.
type OCISource struct {
	authURL      string
	authService  string
	authTimeout  time.Duration
	authAttempts uint
	authInterval time.Duration
	userAgent    string
	policy       TagPolicy
	lister       TagLister
	client       *http.Client
	logger       *zap.Logger
}

// OCIOption configures an OCISource.
type OCIOption func(*OCISource)

// WithAuthURL overrides the Docker Hub token endpoint.
func WithAuthURL(authURL string) OCIOption {
	return func(s *OCISource) { s.authURL = authURL }
}

// WithAuthTimeout bounds each token request.
func WithAuthTimeout(d time.Duration) OCIOption {
	return func(s *OCISource) {
		if d > 0 {
			s.authTimeout = d
		}
	}
}

// WithAuthRetry sets how many token requests are made and the pause
// between them.
func WithAuthRetry(attempts uint, interval time.Duration) OCIOption {
	return func(s *OCISource) {
		s.authAttempts = attempts
		s.authInterval = interval
	}
}

// WithTagLister replaces the registry client used to list tags.
func WithTagLister(l TagLister) OCIOption {
	return func(s *OCISource) { s.lister = l }
}

// WithTagPolicy selects how the latest tag is chosen.
func WithTagPolicy(p TagPolicy) OCIOption {
	return func(s *OCISource) { s.policy = p }
}

// WithUserAgent sets the User-Agent for token and registry requests.
func WithUserAgent(ua string) OCIOption {
	return func(s *OCISource) { s.userAgent = ua }
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(l *zap.Logger) OCIOption {
	return func(s *OCISource) { s.logger = l }
}

// NewOCISource returns an OCI source talking to real registries unless
// overridden by opts.
func NewOCISource(opts ...OCIOption) *OCISource {
	s := &OCISource{
		authURL:      DockerHubAuthURL,
		authService:  DockerHubAuthService,
		authTimeout:  DefaultAuthTimeout,
		authAttempts: DefaultAuthAttempts,
		authInterval: DefaultAuthInterval,
		userAgent:    DefaultUserAgent,
		policy:       TagPolicyLexical,
		client:       &http.Client{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lister == nil {
		s.lister = NewRegistryTagLister(DefaultTagsTimeout, s.userAgent)
	}
	return s
}

// Latest returns the greatest version tag of repoRef/chartName.
// Docker Hub repositories require a pull token; without one no tag request
// is made.
func (s *OCISource) Latest(ctx context.Context, chartName, repoRef string) (string, error) {
	ref, err := ParseOCIRef(repoRef, chartName)
	if err != nil {
		return "", fail(ReasonParse, chartName, repoRef, err)
	}

	var token string
	if ref.DockerHub {
		token, err = s.fetchToken(ctx, ref.Repository)
		if err != nil {
			return "", fail(ReasonAuth, chartName, repoRef, err)
		}
	}

	tags, err := s.lister.ListTags(ctx, ref, token)
	if err != nil {
		return "", fail(classifyListError(err), chartName, repoRef, fmt.Errorf("listing tags of %s: %w", ref, err))
	}
	if len(tags) == 0 {
		return "", fail(ReasonNoTags, chartName, repoRef, errNoTags)
	}

	latest, ok := SelectLatestTag(FilterVersionTags(tags), s.policy)
	if !ok {
		return "", fail(ReasonNoTags, chartName, repoRef, errNoVersionTag)
	}
	return latest, nil
}

func classifyListError(err error) Reason {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ReasonAuth
		case http.StatusNotFound:
			return ReasonNotFound
		default:
			return ReasonStatus
		}
	}
	return ReasonTransport
}

type tokenResponse struct {
	Token string `json:"token"`
}

// fetchToken requests a pull-scoped bearer token for repository. A response
// without a token is final; transport and status errors are retried.
func (s *OCISource) fetchToken(ctx context.Context, repository string) (string, error) {
	q := url.Values{}
	q.Set("service", s.authService)
	q.Set("scope", "repository:"+repository+":pull")
	tokenURL := s.authURL + "?" + q.Encode()

	attempts := s.authAttempts
	if attempts == 0 {
		attempts = 1
	}

	return backoff.Retry(ctx, func() (string, error) {
		return s.requestToken(ctx, tokenURL)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.authInterval)),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Debug("token request failed, retrying",
				zap.String("repository", repository),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
}

func (s *OCISource) requestToken(ctx context.Context, tokenURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("network error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", errAuthStatus, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if body.Token == "" {
		return "", backoff.Permanent(errNoToken)
	}
	return body.Token, nil
}

// RegistryTagLister lists tags with the go-containerregistry client.
type RegistryTagLister struct {
	timeout   time.Duration
	userAgent string
}

// NewRegistryTagLister returns a lister bounding each listing by timeout.
func NewRegistryTagLister(timeout time.Duration, userAgent string) *RegistryTagLister {
	if timeout <= 0 {
		timeout = DefaultTagsTimeout
	}
	return &RegistryTagLister{timeout: timeout, userAgent: userAgent}
}

// ListTags implements TagLister.
func (l *RegistryTagLister) ListTags(ctx context.Context, ref OCIRef, token string) ([]string, error) {
	repo, err := name.NewRepository(ref.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}

	// Anonymous still answers a bearer challenge with an anonymous token.
	var auth authn.Authenticator = authn.Anonymous
	if token != "" {
		auth = &authn.Bearer{Token: token}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	opts := []remote.Option{remote.WithContext(ctx), remote.WithAuth(auth)}
	if l.userAgent != "" {
		opts = append(opts, remote.WithUserAgent(l.userAgent))
	}
	return remote.List(repo, opts...)
}
