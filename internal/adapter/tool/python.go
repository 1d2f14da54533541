package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/tracer"
)

// outputTruncationMarker is appended when combined output exceeds the configured bound.
const outputTruncationMarker = "\n[output truncated]"

// defaultPythonOutputMax bounds combined stdout+stderr at 4 KiB.
const defaultPythonOutputMax = 4 * 1024

// PythonTool executes model-supplied Python snippets through a PythonRunner.
//
// The snippet runs with the service's own privileges. The separate interpreter
// process, isolated mode, and timeout are the capability boundary; deploy only
// where model input is trusted.
type PythonTool struct {
	runner    PythonRunner
	maxOutput int
	logger    *slog.Logger
}

// NewPythonTool creates a python_exec tool backed by the given runner.
// maxOutput bounds the combined stdout+stderr returned to the model.
func NewPythonTool(runner PythonRunner, maxOutput int, logger *slog.Logger) *PythonTool {
	if maxOutput <= 0 {
		maxOutput = defaultPythonOutputMax
	}
	return &PythonTool{runner: runner, maxOutput: maxOutput, logger: logger}
}

func (t *PythonTool) Name() string { return "python_exec" }
func (t *PythonTool) Description() string {
	return "Execute a Python snippet in a separate interpreter process and return its output"
}

func (t *PythonTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "Python source code to execute"}
			},
			"required": ["code"]
		}`),
	}
}

type pythonParams struct {
	Code string `json:"code"`
}

func (t *PythonTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.python_exec", t.logger, params,
		func(ctx context.Context, span trace.Span, p pythonParams) (any, error) {
			if strings.TrimSpace(p.Code) == "" {
				return ErrResult("code is required")
			}
			span.SetAttributes(tracer.IntAttr("python.code_bytes", len(p.Code)))

			stdout, stderr, err := t.runner.Run(ctx, p.Code)
			combined := combineOutput(stdout, stderr)
			t.logger.Debug("python_exec", "output_bytes", len(combined), "error", err)

			switch {
			case err == nil:
				if combined == "" {
					combined = "(no output)"
				}
				return TextResult(t.truncate(combined)), nil
			case errors.Is(err, domain.ErrTimeout):
				return ErrResult("code execution timed out")
			default:
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) && combined != "" {
					// Non-zero exit with a traceback in hand: surface the
					// output itself so the model can read the failure.
					return ErrResult("%s", t.truncate(combined))
				}
				return nil, fmt.Errorf("python exec: %w", err)
			}
		},
	)
}

func (t *PythonTool) truncate(s string) string {
	if len(s) <= t.maxOutput {
		return s
	}
	return s[:t.maxOutput] + outputTruncationMarker
}

// combineOutput joins stdout and stderr the way a terminal user would see
// them, stdout first.
func combineOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	if !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	return stdout + stderr
}
