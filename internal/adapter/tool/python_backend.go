package tool

import "context"

// PythonRunner executes a Python snippet and returns captured stdout and stderr.
// Both streams may carry partial output alongside a non-nil error (non-zero exit).
type PythonRunner interface {
	Run(ctx context.Context, code string) (stdout, stderr string, err error)
	// Name returns the runner identifier (e.g. "local").
	Name() string
}
