package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/build"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/checker"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/discovery"
	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/resolver"
)

// CheckCommand validates (and optionally fixes) the helmCharts of every
// application owning one of the given files, or of every application when
// no files are given.
var CheckCommand = &cli.Command{
	Name:      "check",
	Usage:     "Check helmCharts declarations and kustomize builds",
	ArgsUsage: "[FILE...]",
	Flags:     checkFlags(),
	Action:    runCheck,
}

func checkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "fix",
			Usage:   "fix issues in place (namespace, includeCRDs, version, valuesFile)",
			EnvVars: []string{"CHARTCHECK_FIX"},
		},
		&cli.BoolFlag{
			Name:    "update",
			Usage:   "warn about charts with a newer published version",
			EnvVars: []string{"CHARTCHECK_UPDATE"},
		},
		&cli.StringFlag{
			Name:    "root",
			Usage:   "repository root (default: git top level of the working directory)",
			EnvVars: []string{"CHARTCHECK_ROOT"},
		},
		&cli.StringSliceFlag{
			Name:    "env-dir",
			Value:   cli.NewStringSlice(discovery.DefaultEnvironments...),
			Usage:   "environment directories scanned when no files are given",
			EnvVars: []string{"CHARTCHECK_ENV_DIRS"},
		},
		&cli.BoolFlag{
			Name:    "skip-build",
			Usage:   "skip kustomize build verification",
			EnvVars: []string{"CHARTCHECK_SKIP_BUILD"},
		},
		&cli.StringFlag{
			Name:    "kustomize",
			Value:   build.DefaultBinary,
			Usage:   "kustomize binary",
			EnvVars: []string{"CHARTCHECK_KUSTOMIZE"},
		},
		&cli.DurationFlag{
			Name:  "build-timeout",
			Value: build.DefaultTimeout,
			Usage: "timeout for each kustomize build",
		},
		&cli.DurationFlag{
			Name:  "http-timeout",
			Value: resolver.DefaultIndexTimeout,
			Usage: "timeout for index.yaml and tag list requests",
		},
		&cli.DurationFlag{
			Name:  "auth-timeout",
			Value: resolver.DefaultAuthTimeout,
			Usage: "timeout for each registry token request",
		},
		&cli.StringFlag{
			Name:    "tag-policy",
			Value:   string(resolver.TagPolicyLexical),
			Usage:   "how the latest OCI tag is chosen: lexical or semver",
			EnvVars: []string{"CHARTCHECK_TAG_POLICY"},
		},
	}
}

func runCheck(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	r, err := newResolver(c, logger)
	if err != nil {
		return err
	}

	root, err := repoRoot(c)
	if err != nil {
		return err
	}

	var dirs []string
	if files := c.Args().Slice(); len(files) > 0 {
		dirs = discovery.AppDirsFromFiles(root, files)
	} else {
		dirs, err = discovery.AllAppDirs(root, stringSliceFlag(c, "env-dir"))
		if err != nil {
			return err
		}
	}

	out := c.App.Writer
	if len(dirs) == 0 {
		_, _ = fmt.Fprintln(out, "No application directories to check")
		return nil
	}

	builder := build.New(
		build.WithBinary(stringFlag(c, "kustomize")),
		build.WithTimeout(durationFlag(c, "build-timeout")),
		build.WithLogger(logger),
	)
	chk := checker.New(checker.Options{
		AutoFix:      boolFlag(c, "fix"),
		CheckUpdates: boolFlag(c, "update"),
		SkipBuild:    boolFlag(c, "skip-build"),
		Out:          out,
	}, r, builder, logger)

	report := chk.Run(c.Context, root, dirs)
	report.Print(out)
	if report.Failed() {
		return cli.Exit("", 1)
	}
	return nil
}

func repoRoot(c *cli.Context) (string, error) {
	if root := stringFlag(c, "root"); root != "" {
		return root, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return discovery.RepoRoot(c.Context, cwd), nil
}

func newResolver(c *cli.Context, logger *zap.Logger) (*resolver.Resolver, error) {
	policy, err := resolver.ParseTagPolicy(stringFlag(c, "tag-policy"))
	if err != nil {
		return nil, err
	}
	httpTimeout := durationOr(durationFlag(c, "http-timeout"), resolver.DefaultIndexTimeout)

	index := resolver.NewIndexSource(httpTimeout, resolver.DefaultUserAgent)
	oci := resolver.NewOCISource(
		resolver.WithAuthTimeout(durationFlag(c, "auth-timeout")),
		resolver.WithTagPolicy(policy),
		resolver.WithTagLister(resolver.NewRegistryTagLister(httpTimeout, resolver.DefaultUserAgent)),
		resolver.WithLogger(logger),
	)
	return resolver.New(index, oci, logger), nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
