// Package archiver produces one compressed tarball per backed up folder,
// either through the tar and rsync binaries or in-process.
package archiver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/semmidev/folderbak/internal/domain"
)

const (
	EngineExec   = "exec"
	EngineNative = "native"

	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type Options struct {
	Engine      string
	Compression string
	// CopyFirst mirrors the source into TempDir before compressing it.
	CopyFirst bool
	TempDir   string
}

// New builds the archiver selected by opts. runner is only used by the
// exec engine and may be nil for the native one.
func New(opts Options, runner Runner, logger Logger) (domain.Archiver, error) {
	if opts.Compression != CompressionGzip && opts.Compression != CompressionZstd {
		return nil, fmt.Errorf("unsupported compression: %s", opts.Compression)
	}

	switch opts.Engine {
	case EngineExec, "":
		if runner == nil {
			runner = ExecRunner{}
		}
		return NewTar(opts, runner, logger), nil
	case EngineNative:
		return NewNative(opts, logger), nil
	default:
		return nil, fmt.Errorf("unsupported archive engine: %s", opts.Engine)
	}
}

// Extension returns the archive suffix for a compression name.
func Extension(compression string) string {
	if compression == CompressionZstd {
		return "tar.zst"
	}
	return "tar.gz"
}

// mirrorPath is where copy mode stages the uncompressed copy of a folder.
func mirrorPath(tempDir string, job *domain.FolderJob) string {
	return filepath.Join(tempDir, job.Name)
}

// clearStale removes leftovers of an interrupted run for this job.
func clearStale(paths ...string) error {
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("remove stale %s: %w", p, err)
		}
	}
	return nil
}
