package quota

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/terminus-io/storage-agent/pkg/errdefs"
	"k8s.io/klog/v2"
)

const DefaultCommandTimeout = 30 * time.Second

var errStderrOutput = errors.New("command wrote to stderr")

// Runner executes one external command to completion and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
//
// With StrictStderr set, any stderr output fails the command even when it
// exits zero. xfs_quota reports most problems that way, at the price of
// false positives from chatty but successful invocations.
type ExecRunner struct {
	Timeout      time.Duration
	StrictStderr bool
}

func NewExecRunner(timeout time.Duration, strictStderr bool) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ExecRunner{Timeout: timeout, StrictStderr: strictStderr}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmdline := CommandLine(name, args...)
	klog.V(4).InfoS("Exec", "cmd", cmdline)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			ctxErr = fmt.Errorf("timed out after %s", r.Timeout)
		}
		return "", &errdefs.ExecutionError{Command: cmdline, Stderr: stderr.String(), Err: ctxErr}
	}
	if err != nil {
		return "", &errdefs.ExecutionError{Command: cmdline, Stderr: stderr.String(), Err: err}
	}
	if stderr.Len() > 0 {
		if r.StrictStderr {
			return "", &errdefs.ExecutionError{Command: cmdline, Stderr: stderr.String(), Err: errStderrOutput}
		}
		klog.InfoS("Command succeeded with stderr output", "cmd", cmdline, "stderr", strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// CommandLine renders name and args for logs and errors.
func CommandLine(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
