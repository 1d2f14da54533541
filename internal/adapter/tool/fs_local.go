package tool

import "os"

// LocalFileBackend reads files from the local filesystem.
type LocalFileBackend struct{}

// NewLocalFileBackend creates a local file backend.
func NewLocalFileBackend() *LocalFileBackend {
	return &LocalFileBackend{}
}

func (b *LocalFileBackend) Name() string { return "local" }

func (b *LocalFileBackend) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
