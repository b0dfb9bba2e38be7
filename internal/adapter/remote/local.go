package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
)

// LocalDialer uses REMOTE_HOST as a directory on this machine, with
// REMOTE_ROOT below it.
type LocalDialer struct {
	basePath string
}

func NewLocal(cfg config.RemoteConfig) *LocalDialer {
	return &LocalDialer{basePath: filepath.Join(cfg.Host, filepath.FromSlash(cfg.Root))}
}

func (l *LocalDialer) Connect(ctx context.Context) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "open "+l.basePath, "", err)
	}
	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "open "+l.basePath, "",
			fmt.Errorf("failed to create backup directory: %w", err))
	}
	return &localSession{basePath: l.basePath}, nil
}

type localSession struct {
	basePath string
}

func (l *localSession) path(p string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(p))
}

func (l *localSession) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	result := make([]domain.RemoteEntry, 0, len(entries))
	for _, entry := range entries {
		kind := domain.EntryFile
		if entry.IsDir() {
			kind = domain.EntryDir
		}
		result = append(result, domain.RemoteEntry{Name: entry.Name(), Kind: kind})
	}

	return result, nil
}

func (l *localSession) EnsureDir(ctx context.Context, p string) error {
	if err := os.MkdirAll(l.path(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func (l *localSession) RemoveDirRecursive(ctx context.Context, p string) error {
	target := l.path(p)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
	}
	return nil
}

// Upload writes through a temporary name so an interrupted copy never
// leaves a truncated archive under the final name.
func (l *localSession) Upload(ctx context.Context, localPath, remotePath string) error {
	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	destPath := l.path(remotePath)
	dest, err := os.CreateTemp(filepath.Dir(destPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	tmpName := dest.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(dest, &ctxReader{ctx: ctx, r: source}); err != nil {
		dest.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}

	return nil
}

func (l *localSession) Close() error {
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
