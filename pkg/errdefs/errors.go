// Package errdefs defines the error kinds the storage agent surfaces to its callers.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError 启动配置非法或缺失，进程无法启动
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ExecutionError is returned when an external quota command fails: it wrote
// to stderr, exited non-zero or ran past its deadline.
type ExecutionError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString("execution of [")
	b.WriteString(e.Command)
	b.WriteString("] failed")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		b.WriteString(", stderr: ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NotFoundError 指定的 volume 没有登记记录
type NotFoundError struct {
	VolumeID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("volume %q not found", e.VolumeID)
}

// StateCorruptionError reports registry tables that cannot be trusted at load
// time. It is never repaired automatically.
type StateCorruptionError struct {
	Path   string
	Line   int
	Reason string
}

func (e *StateCorruptionError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("state corruption in %s line %d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("state corruption in %s: %s", e.Path, e.Reason)
}

// InvalidArgumentError rejects a request before any side effect happens.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Reason)
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsExecution(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsStateCorruption(err error) bool {
	var target *StateCorruptionError
	return errors.As(err, &target)
}

func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}
