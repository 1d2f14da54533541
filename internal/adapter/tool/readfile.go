package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"scribe-ai/internal/domain"
	"scribe-ai/internal/infra/tracer"
	"scribe-ai/internal/security"
)

// truncationMarker is appended when file contents exceed the configured byte bound.
const truncationMarker = "\n[truncated]"

// defaultReadFileMax bounds returned file contents at 64 KiB.
const defaultReadFileMax = 64 * 1024

// ReadFileTool reads text files inside the sandbox root.
// Absolute paths, traversal, and symlink escapes are rejected before any read.
type ReadFileTool struct {
	backend  FileBackend
	sandbox  *security.Sandbox
	maxBytes int
	logger   *slog.Logger
}

// NewReadFileTool creates a sandboxed read_file tool backed by the given FileBackend.
// maxBytes bounds the returned contents; longer files are cut off with a marker.
func NewReadFileTool(backend FileBackend, sandbox *security.Sandbox, maxBytes int, logger *slog.Logger) *ReadFileTool {
	if maxBytes <= 0 {
		maxBytes = defaultReadFileMax
	}
	return &ReadFileTool{backend: backend, sandbox: sandbox, maxBytes: maxBytes, logger: logger}
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read a text file from the workspace and return its contents"
}

func (t *ReadFileTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File path relative to the workspace root"}
			},
			"required": ["path"]
		}`),
	}
}

type readFileParams struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.read_file", t.logger, params,
		func(_ context.Context, span trace.Span, p readFileParams) (any, error) {
			if p.Path == "" {
				return ErrResult("path is required")
			}

			resolved, err := t.resolvePath(p.Path)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("file.path", resolved))

			data, err := t.backend.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("read file: %w", err)
			}

			truncated := len(data) > t.maxBytes
			if truncated {
				data = data[:t.maxBytes]
			}
			t.logger.Debug("read_file", "path", resolved, "size", len(data), "truncated", truncated)

			content := string(data)
			if truncated {
				content += truncationMarker
			}
			return TextResult(content), nil
		},
	)
}

// resolvePath validates a workspace-relative path against the sandbox.
// Absolute paths are rejected outright so the model can only name files
// relative to the configured root.
func (t *ReadFileTool) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", domain.NewDomainError("ReadFileTool", domain.ErrPathOutsideSandbox,
			fmt.Sprintf("absolute path %q not allowed", path))
	}
	return t.sandbox.ValidatePath(path)
}
