package archiver

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner starts an external process and waits for it. It returns the
// combined stdout/stderr in both the success and the failure case.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitError reports a process that could not start or exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed (exit %d): %v", e.Command, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failed (exit %d): %v, output: %s", e.Command, e.Code, e.Err, e.Output)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return output, &ExitError{
			Command: name,
			Code:    code,
			Output:  strings.TrimSpace(string(output)),
			Err:     err,
		}
	}
	return output, nil
}
