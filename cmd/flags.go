package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Check and resolver flags are defined on both the app and its subcommands,
// so "chartcheck --fix check" and "chartcheck check --fix" must agree. A
// flag is read from the nearest context where it was set, falling back to
// the current context's default.
func flagContext(c *cli.Context, name string) *cli.Context {
	for _, ctx := range c.Lineage() {
		if ctx.App != nil && ctx.IsSet(name) {
			return ctx
		}
	}
	return c
}

func boolFlag(c *cli.Context, name string) bool {
	return flagContext(c, name).Bool(name)
}

func stringFlag(c *cli.Context, name string) string {
	return flagContext(c, name).String(name)
}

func durationFlag(c *cli.Context, name string) time.Duration {
	return flagContext(c, name).Duration(name)
}

func stringSliceFlag(c *cli.Context, name string) []string {
	return flagContext(c, name).StringSlice(name)
}
