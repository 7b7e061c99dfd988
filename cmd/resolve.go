package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
)

var errChartRequired = errors.New("exactly one chart name is required")

// ResolveCommand prints the latest version of one chart.
var ResolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Print the latest version of a chart in a repository",
	ArgsUsage: "CHART",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "repo",
			Aliases:  []string{"r"},
			Usage:    "repository: https://... index or oci://registry/path",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "http-timeout",
			Usage: "timeout for index.yaml and tag list requests",
		},
		&cli.DurationFlag{
			Name:  "auth-timeout",
			Usage: "timeout for each registry token request",
		},
		&cli.StringFlag{
			Name:  "tag-policy",
			Usage: "how the latest OCI tag is chosen: lexical or semver",
		},
	},
	Action: runResolve,
}

func runResolve(c *cli.Context) error {
	if c.NArg() != 1 {
		return errChartRequired
	}

	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	r, err := newResolver(c, logger)
	if err != nil {
		return err
	}

	chartName := c.Args().First()
	version, err := r.Resolve(c.Context, chartName, stringFlag(c, "repo"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	_, _ = fmt.Fprintln(c.App.Writer, version)
	return nil
}
