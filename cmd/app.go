package cmd

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/internal/logging"
)

// NewApp returns the chartcheck application. Running it without a
// subcommand performs the check.
func NewApp() *cli.App {
	return &cli.App{
		Name:      "chartcheck",
		Usage:     "Validate and fix helmCharts in kustomization.yaml files",
		ArgsUsage: "[FILE...]",
		Flags:     append(globalFlags(), checkFlags()...),
		Action:    runCheck,
		Commands: []*cli.Command{
			CheckCommand,
			ResolveCommand,
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "warn",
			Usage:   "log level: debug, info, warn, error",
			EnvVars: []string{"CHARTCHECK_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   logging.FormatConsole,
			Usage:   "log format: console or json",
			EnvVars: []string{"CHARTCHECK_LOG_FORMAT"},
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	return logging.New(stringFlag(c, "log-level"), stringFlag(c, "log-format"))
}
