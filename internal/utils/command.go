package utils

import (
	"context"
	"os/exec"
	"strings"

	"dcgm-keeper/internal/logger"
)

// Runner abstracts external collaborator invocation (systemctl, git, make,
// docker, apt-get) so stages receive an explicit dependency instead of
// reaching for the ambient environment, and tests can substitute a fake.
type Runner interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)
	// RunDir is Run with an explicit working directory.
	RunDir(ctx context.Context, dir, name string, args ...string) (string, error)
	// LookPath reports where a command resolves on PATH.
	LookPath(name string) (string, error)
}

// ExecRunner is the os/exec backed Runner used outside of tests.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

/**
 * Execute external command and capture combined output
 * @param {context.Context} ctx - Context for cancellation
 * @param {string} name - Command name
 * @param {[]string} args - Command arguments
 * @returns {string} Trimmed combined stdout/stderr
 * @returns {error} Non-nil when the command failed to start or exited non-zero
 */
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.RunDir(ctx, "", name, args...)
}

func (r *ExecRunner) RunDir(ctx context.Context, dir, name string, args ...string) (string, error) {
	logger.Debugf("Executing command: %s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		logger.Debugf("Command '%s' failed: %v, output: %s", name, err, output)
	}
	return output, err
}

func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
