package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/beyondessential/alertd/internal/alertdef"
)

// ShellRunner evaluates Shell sources by writing the script to a temp file
// and running it under the configured interpreter, timing out at the
// alert's interval. A non-zero exit is triggered; success means clear.
type ShellRunner struct{}

// Run writes src.Script to a temp file, invokes src.Interpreter against it,
// and treats a non-zero exit code as triggered — matching the Rust
// original's ControlFlow: a successful run means "nothing to report".
func (r *ShellRunner) Run(ctx context.Context, src alertdef.Source, notBefore time.Time, interval time.Duration, wasTriggered bool) (Result, error) {
	script, err := os.CreateTemp("", "alertd-*.sh")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp script file: %w", err)
	}
	defer os.Remove(script.Name())

	if _, err := script.WriteString(src.Script); err != nil {
		script.Close()
		return Result{}, fmt.Errorf("writing temp script file: %w", err)
	}
	if err := script.Close(); err != nil {
		return Result{}, fmt.Errorf("closing temp script file: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	cmd := exec.CommandContext(runCtx, src.Interpreter, script.Name())
	cmd.Stdin = nil
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err = cmd.Run()
	if runCtx.Err() != nil {
		return skip, nil // the script timed out; treat as not triggered, not an error
	}
	if err == nil {
		return skip, nil // success means nothing to report
	}

	var exitErr *exec.ExitError
	if !isExitError(err, &exitErr) {
		return Result{}, fmt.Errorf("running the shell: %w", err)
	}

	return Result{
		Triggered: true,
		Vars:      map[string]interface{}{"output": toValidUTF8(stdout.Bytes())},
	}, nil
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// toValidUTF8 mirrors String::from_utf8_lossy: invalid byte sequences are
// replaced rather than rejected, since script output is untrusted.
func toValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
