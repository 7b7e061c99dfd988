// Package build renders application directories with kustomize to prove the
// manifests, chart inflation included, still build.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Defaults for the kustomize runner.
const (
	DefaultBinary  = "kustomize"
	DefaultTimeout = 30 * time.Second
)

// Error reports a failed build. Output holds the diagnostic shown to users:
// kustomize's stderr, or a note about a timeout or a missing binary.
type Error struct {
	Dir    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kustomize build %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kustomize runs `kustomize build` with Helm chart inflation enabled.
type Kustomize struct {
	binary  string
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Kustomize runner.
type Option func(*Kustomize)

// WithBinary sets the kustomize executable name or path.
func WithBinary(binary string) Option {
	return func(k *Kustomize) { k.binary = binary }
}

// WithTimeout bounds each build.
func WithTimeout(d time.Duration) Option {
	return func(k *Kustomize) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(k *Kustomize) { k.logger = l }
}

// New returns a runner for DefaultBinary with DefaultTimeout.
func New(opts ...Option) *Kustomize {
	k := &Kustomize{binary: DefaultBinary, timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Args returns the command line used to build dir.
func (k *Kustomize) Args(dir string) []string {
	return []string{"build", "--enable-helm", "--load-restrictor=LoadRestrictionsNone", dir}
}

// Build renders dir and discards the output. A non-zero exit, a timeout, or
// a missing binary returns an *Error.
func (k *Kustomize) Build(ctx context.Context, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	args := k.Args(dir)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, k.binary, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	k.logger.Debug("kustomize build",
		zap.String("cmd", k.binary+" "+strings.Join(args, " ")),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	if err == nil {
		return nil
	}

	output := stderr.String()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		output = fmt.Sprintf("Command timeout after %s", k.timeout)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		output = "Command not found: " + k.binary
	case output == "":
		output = err.Error()
	}
	return &Error{Dir: dir, Output: output, Err: err}
}
