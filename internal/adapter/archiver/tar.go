package archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/semmidev/folderbak/internal/domain"
)

// GNU tar exits with 1 when files changed while being read. The archive is
// still complete, so this is reported as a warning.
const tarExitFilesDiffer = 1

// TarArchiver shells out to tar, and to rsync in copy mode.
type TarArchiver struct {
	opts   Options
	runner Runner
	logger Logger
}

func NewTar(opts Options, runner Runner, logger Logger) *TarArchiver {
	return &TarArchiver{opts: opts, runner: runner, logger: logger}
}

func (a *TarArchiver) Extension() string {
	return Extension(a.opts.Compression)
}

func (a *TarArchiver) Archive(ctx context.Context, job *domain.FolderJob) error {
	mirror := mirrorPath(a.opts.TempDir, job)
	if err := clearStale(job.ArchivePath, mirror); err != nil {
		return domain.Wrap(domain.ErrArchive, "prepare", job.Name, err)
	}

	src := job.SourcePath
	if a.opts.CopyFirst {
		if err := os.MkdirAll(mirror, 0755); err != nil {
			return domain.Wrap(domain.ErrArchive, "copy", job.Name, err)
		}
		defer func() {
			if err := os.RemoveAll(mirror); err != nil {
				a.logger.Warnf("[%s] Failed to remove local copy %s: %v", job.Name, mirror, err)
			}
		}()

		a.logger.Infof("[%s] Copying %s to %s", job.Name, src, mirror)
		if _, err := a.runner.Run(ctx, "rsync", RsyncArgs(src, mirror)...); err != nil {
			return domain.Wrap(domain.ErrArchive, "copy", job.Name, err)
		}
		src = mirror
	}

	a.logger.Infof("[%s] Compressing %s", job.Name, src)
	output, err := a.runner.Run(ctx, "tar", TarArgs(a.opts.Compression, src, job.ArchivePath)...)
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != tarExitFilesDiffer {
			return domain.Wrap(domain.ErrArchive, "compress", job.Name, err)
		}
		a.logger.Warnf("[%s] tar reported changed files: %s", job.Name, exitErr.Output)
	} else if msg := strings.TrimSpace(string(output)); msg != "" {
		a.logger.Warnf("[%s] tar: %s", job.Name, msg)
	}

	if _, err := os.Stat(job.ArchivePath); err != nil {
		return domain.Wrap(domain.ErrArchive, "compress", job.Name, fmt.Errorf("archive missing after tar: %w", err))
	}
	return nil
}

// TarArgs builds the tar command line for a folder. Unreadable files are
// skipped with a diagnostic instead of failing the archive.
func TarArgs(compression, src, out string) []string {
	flag := "-z"
	if compression == CompressionZstd {
		flag = "--zstd"
	}
	return []string{
		"-c",
		flag,
		"--ignore-failed-read",
		"--warning=no-file-changed",
		"-f", out,
		"-C", src,
		".",
	}
}

// RsyncArgs mirrors src into dst, deleting extraneous files in dst.
func RsyncArgs(src, dst string) []string {
	return []string{
		"-a",
		"--delete",
		strings.TrimSuffix(src, "/") + "/",
		strings.TrimSuffix(dst, "/") + "/",
	}
}
