package remedy

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one external command and returns its combined output.
// A non-zero exit status is reported as an error; callers at the tactic
// boundary convert it to a tactic failure, never a hard fault.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (output string, err error)
}

// ExecRunner runs commands through os/exec with a per-command time limit
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner creates a runner with the default 60s per-command limit
func NewExecRunner() ExecRunner {
	return ExecRunner{Timeout: 60 * time.Second}
}

// Run executes the command and returns trimmed combined stdout/stderr
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
