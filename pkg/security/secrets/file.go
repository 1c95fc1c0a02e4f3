package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads secrets from individual files in a directory, the
// layout mounted secret stores expose (one file per secret, the value as
// the file content).
type FileProvider struct {
	// Dir is the secrets directory.
	Dir string
}

// NewFileProvider creates a directory-backed provider.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

// GetSecret reads a secret file. Names are sanitized against traversal.
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", &NotFoundError{Name: name}
	}
	data, err := os.ReadFile(filepath.Join(p.Dir, name))
	if err != nil {
		return "", &NotFoundError{Name: name}
	}
	return strings.TrimSpace(string(data)), nil
}
