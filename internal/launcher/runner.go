package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/ashureev/jarvis/internal/domain"
)

// Runner starts a launch descriptor.
type Runner interface {
	Start(ctx context.Context, d Descriptor) error
}

// ExecRunner starts descriptors as detached child processes. Start returns
// as soon as the process is running; it is reaped in the background.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Start implements Runner. The process outlives ctx; ctx only aborts the
// start itself.
func (r *ExecRunner) Start(ctx context.Context, d Descriptor) error {
	if strings.TrimSpace(d.Command) == "" {
		return fmt.Errorf("%w: empty command", domain.ErrLaunchFailure)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(d.Command, d.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLaunchFailure, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			r.logger.Debug("Launched process exited with error", "command", d.Command, "pid", cmd.Process.Pid, "error", err)
		}
	}()
	return nil
}
