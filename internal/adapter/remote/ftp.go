package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
)

// FTPTrace returns a writer receiving the raw FTP control conversation.
type FTPTrace func() io.Writer

// ftpConn is the subset of *ftp.ServerConn used by a session.
type ftpConn interface {
	List(path string) ([]*ftp.Entry, error)
	MakeDir(path string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	RemoveDirRecur(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type FTPDialer struct {
	cfg    config.RemoteConfig
	logger Logger
	trace  FTPTrace
}

func NewFTP(cfg config.RemoteConfig, logger Logger, trace FTPTrace) *FTPDialer {
	return &FTPDialer{cfg: cfg, logger: logger, trace: trace}
}

func (d *FTPDialer) Connect(ctx context.Context) (domain.Session, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithDialer(net.Dialer{
			Timeout:   d.cfg.Timeout,
			KeepAlive: d.cfg.KeepAlive,
		}),
	}
	if d.cfg.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: d.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}))
	}
	if d.trace != nil {
		opts = append(opts, ftp.DialWithDebugOutput(d.trace()))
	}

	d.logger.Debugf("Connecting to ftp://%s (secure=%t)", addr, d.cfg.Secure)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConnection, "connect "+addr, "", err)
	}

	if err := conn.Login(d.cfg.User, d.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, domain.Wrap(domain.ErrConnection, "login "+addr, "", err)
	}

	return &ftpSession{conn: conn, root: d.cfg.Root}, nil
}

type ftpSession struct {
	conn ftpConn
	root string
}

func (s *ftpSession) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.conn.List(joinRoot(s.root, ""))
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", s.root, err)
	}

	result := make([]domain.RemoteEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		kind := domain.EntryFile
		if e.Type == ftp.EntryTypeFolder {
			kind = domain.EntryDir
		}
		result = append(result, domain.RemoteEntry{Name: e.Name, Kind: kind})
	}
	return result, nil
}

// EnsureDir creates every missing component of p. Existing directories are
// not an error, so it is safe to call repeatedly on the same day.
func (s *ftpSession) EnsureDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	current := joinRoot(s.root, "")
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		current = path.Join(current, part)
		if err := s.conn.MakeDir(current); err != nil {
			exists, existsErr := s.dirExists(current)
			if existsErr != nil || !exists {
				return fmt.Errorf("ftp mkdir %s: %w", current, err)
			}
		}
	}
	return nil
}

func (s *ftpSession) dirExists(p string) (bool, error) {
	cwd, err := s.conn.CurrentDir()
	if err != nil {
		return false, err
	}
	if err := s.conn.ChangeDir(p); err != nil {
		return false, nil
	}
	return true, s.conn.ChangeDir(cwd)
}

func (s *ftpSession) RemoveDirRecursive(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.RemoveDirRecur(joinRoot(s.root, p)); err != nil {
		return fmt.Errorf("ftp remove %s: %w", p, err)
	}
	return nil
}

func (s *ftpSession) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if err := s.conn.Stor(joinRoot(s.root, remotePath), f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remotePath, err)
	}
	return nil
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}
