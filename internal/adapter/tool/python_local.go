package tool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"scribe-ai/internal/domain"
)

// LocalPythonRunner runs snippets as a separate interpreter process on the
// local machine. Each run writes the code to a temp file and invokes the
// configured binary in isolated mode (-I), so the snippet ignores PYTHON*
// environment variables and user site-packages.
type LocalPythonRunner struct {
	bin     string
	timeout time.Duration
}

// NewLocalPythonRunner creates a local runner. bin defaults to "python3",
// timeout to 30s.
func NewLocalPythonRunner(bin string, timeout time.Duration) *LocalPythonRunner {
	if bin == "" {
		bin = "python3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalPythonRunner{bin: bin, timeout: timeout}
}

func (r *LocalPythonRunner) Name() string { return "local" }

func (r *LocalPythonRunner) Run(ctx context.Context, code string) (string, string, error) {
	tmp, err := os.CreateTemp("", "scribe-*.py")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("write snippet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close snippet: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, "-I", tmp.Name())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(),
			domain.NewDomainError("PythonRunner.Run", domain.ErrTimeout,
				fmt.Sprintf("execution exceeded %s", r.timeout))
	}
	return stdout.String(), stderr.String(), err
}
