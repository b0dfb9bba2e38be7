package archiver

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/semmidev/folderbak/internal/domain"
)

const ioBufferSize = 256 << 10

// NativeArchiver writes tar.gz / tar.zst archives in-process.
type NativeArchiver struct {
	opts   Options
	logger Logger
}

func NewNative(opts Options, logger Logger) *NativeArchiver {
	return &NativeArchiver{opts: opts, logger: logger}
}

func (a *NativeArchiver) Extension() string {
	return Extension(a.opts.Compression)
}

func (a *NativeArchiver) Archive(ctx context.Context, job *domain.FolderJob) error {
	mirror := mirrorPath(a.opts.TempDir, job)
	if err := clearStale(job.ArchivePath, mirror); err != nil {
		return domain.Wrap(domain.ErrArchive, "prepare", job.Name, err)
	}

	// WalkDir does not descend into a symlinked root.
	src, err := filepath.EvalSymlinks(job.SourcePath)
	if err != nil {
		return domain.Wrap(domain.ErrArchive, "resolve source", job.Name, err)
	}
	if a.opts.CopyFirst {
		defer func() {
			if err := os.RemoveAll(mirror); err != nil {
				a.logger.Warnf("[%s] Failed to remove local copy %s: %v", job.Name, mirror, err)
			}
		}()

		a.logger.Infof("[%s] Copying %s to %s", job.Name, src, mirror)
		if err := a.copyTree(ctx, job.Name, src, mirror); err != nil {
			return domain.Wrap(domain.ErrArchive, "copy", job.Name, err)
		}
		src = mirror
	}

	a.logger.Infof("[%s] Compressing %s", job.Name, src)
	if err := a.compress(ctx, job.Name, src, job.ArchivePath); err != nil {
		return domain.Wrap(domain.ErrArchive, "compress", job.Name, err)
	}
	return nil
}

// compress writes to a temp file next to dest and renames it into place,
// so a crash never leaves a truncated archive under the final name.
func (a *NativeArchiver) compress(ctx context.Context, folder, src, dest string) (retErr error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := a.writeArchive(ctx, folder, src, tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp archive: %w", err)
	}
	return nil
}

func (a *NativeArchiver) writeArchive(ctx context.Context, folder, src string, w io.Writer) (retErr error) {
	bufWriter := bufio.NewWriterSize(w, ioBufferSize)

	compressed, err := a.newCompressedWriter(bufWriter)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(compressed)

	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compressed.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == src {
				return walkErr
			}
			a.logger.Warnf("[%s] Skipping unreadable %s: %v", folder, path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == src {
			return nil
		}
		return a.addEntry(tw, folder, src, path, d)
	})
}

func (a *NativeArchiver) newCompressedWriter(w io.Writer) (io.WriteCloser, error) {
	if a.opts.Compression == CompressionZstd {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	}
	gw, err := pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return gw, nil
}

func (a *NativeArchiver) addEntry(tw *tar.Writer, folder, root, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		a.logger.Warnf("[%s] Skipping %s: %v", folder, path, err)
		return nil
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			a.logger.Warnf("[%s] Skipping unreadable link %s: %v", folder, path, err)
			return nil
		}
	} else if !info.Mode().IsRegular() && !info.IsDir() {
		a.logger.Debugf("[%s] Skipping special file %s", folder, path)
		return nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("header for %s: %w", path, err)
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}

	if !info.Mode().IsRegular() {
		return tw.WriteHeader(hdr)
	}

	f, err := os.Open(path)
	if err != nil {
		a.logger.Warnf("[%s] Skipping unreadable file %s: %v", folder, path, err)
		return nil
	}
	defer f.Close()

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %s: %w", path, err)
	}
	padded, err := copyContents(tw, f, hdr.Size)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if padded > 0 {
		a.logger.Warnf("[%s] %s shrank while being archived, padded %d bytes", folder, path, padded)
	}
	return nil
}

// copyContents writes exactly size bytes from r to w. When r ends early the
// rest is zero filled so the tar stream stays valid, and the number of
// filled bytes is returned. Bytes beyond size are not read.
func copyContents(w io.Writer, r io.Reader, size int64) (int64, error) {
	n, err := io.CopyN(w, r, size)
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, io.EOF) {
		return 0, err
	}
	missing := size - n
	if _, err := io.CopyN(w, zeroReader{}, missing); err != nil {
		return 0, err
	}
	return missing, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// copyTree mirrors src into dst in-process. Unreadable entries are skipped
// with a warning, like the archive step does.
func (a *NativeArchiver) copyTree(ctx context.Context, folder, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == src {
				return walkErr
			}
			a.logger.Warnf("[%s] Skipping unreadable %s: %v", folder, path, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			a.logger.Warnf("[%s] Skipping %s: %v", folder, path, err)
			return nil
		}

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				a.logger.Warnf("[%s] Skipping unreadable link %s: %v", folder, path, err)
				return nil
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return a.copyFile(folder, path, target, info)
		default:
			return nil
		}
	})
}

func (a *NativeArchiver) copyFile(folder, src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		a.logger.Warnf("[%s] Skipping unreadable file %s: %v", folder, src, err)
		return nil
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0600)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
