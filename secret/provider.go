package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves references as environment variable names.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an env provider reading the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the value of the environment variable ref.
func (p *EnvProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrSecretNotFound, ref)
	}
	return v, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error { return nil }

// FileProvider resolves references as file paths. Relative paths are
// resolved against BaseDir and may not escape it. Trailing newlines are
// trimmed.
type FileProvider struct {
	baseDir string
}

// NewFileProvider creates a file provider rooted at baseDir. An empty
// baseDir allows absolute paths only.
func NewFileProvider(baseDir string) *FileProvider {
	return &FileProvider{baseDir: baseDir}
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file named by ref.
func (p *FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := p.path(ref)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is confined by p.path
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: file %s", ErrSecretNotFound, ref)
		}
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (p *FileProvider) path(ref string) (string, error) {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref), nil
	}
	if p.baseDir == "" {
		return "", fmt.Errorf("%w: relative path %q without base directory", ErrInvalidRef, ref)
	}
	path := filepath.Join(p.baseDir, ref)
	rel, err := filepath.Rel(p.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideBaseDir, ref)
	}
	return path, nil
}

// Close is a no-op.
func (p *FileProvider) Close() error { return nil }
