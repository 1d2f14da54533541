package tool

// FileBackend abstracts file reads so tests can substitute failures
// without touching the real filesystem.
type FileBackend interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(path string) ([]byte, error)
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
