package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/semmidev/folderbak/internal/adapter/remote"
	"github.com/semmidev/folderbak/internal/config"
	"github.com/semmidev/folderbak/internal/domain"
	"github.com/semmidev/folderbak/internal/retry"
)

type testLogger struct{}

func (testLogger) Debugf(string, ...interface{}) {}
func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Warnf(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

type recordingNotifier struct {
	msgs []domain.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Message) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) errorMessages() []domain.Message {
	var out []domain.Message
	for _, m := range n.msgs {
		if m.IsError {
			out = append(out, m)
		}
	}
	return out
}

// fakeArchiver writes the folder name as the archive content.
type fakeArchiver struct {
	fail     map[string]error
	archived []string
	sources  map[string]string
}

func (a *fakeArchiver) Extension() string { return "tar.gz" }

func (a *fakeArchiver) Archive(_ context.Context, job *domain.FolderJob) error {
	if err := a.fail[job.Name]; err != nil {
		return domain.Wrap(domain.ErrArchive, "compress", job.Name, err)
	}
	a.archived = append(a.archived, job.Name)
	if a.sources == nil {
		a.sources = map[string]string{}
	}
	a.sources[job.Name] = job.SourcePath
	return os.WriteFile(job.ArchivePath, []byte(job.Name), 0644)
}

type fakeSpace struct {
	short   map[string]bool
	checked []string
}

func (s *fakeSpace) Check(path string) domain.SpaceDecision {
	s.checked = append(s.checked, path)
	if s.short[filepath.Base(path)] {
		return domain.SpaceDecision{Size: 2048, Required: 2048, Free: 1024, Sufficient: false}
	}
	return domain.SpaceDecision{Size: 10, Required: 10, Free: 1 << 30, Sufficient: true}
}

// countingDialer wraps a real dialer, counting calls and injecting faults.
type countingDialer struct {
	inner      domain.Dialer
	connects   int
	uploads    int
	connectErr error
	uploadErr  error
	removeErr  error
	listErr    error
}

func (d *countingDialer) Connect(ctx context.Context) (domain.Session, error) {
	d.connects++
	if d.connectErr != nil {
		return nil, domain.Wrap(domain.ErrConnection, "connect", "", d.connectErr)
	}
	s, err := d.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &countingSession{Session: s, d: d}, nil
}

type countingSession struct {
	domain.Session
	d *countingDialer
}

func (s *countingSession) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	if s.d.listErr != nil {
		return nil, s.d.listErr
	}
	return s.Session.List(ctx)
}

func (s *countingSession) RemoveDirRecursive(ctx context.Context, p string) error {
	if s.d.removeErr != nil {
		return s.d.removeErr
	}
	return s.Session.RemoveDirRecursive(ctx, p)
}

func (s *countingSession) Upload(ctx context.Context, localPath, remotePath string) error {
	s.d.uploads++
	if s.d.uploadErr != nil {
		return s.d.uploadErr
	}
	return s.Session.Upload(ctx, localPath, remotePath)
}

type fixture struct {
	sourceDir string
	workDir   string
	remoteDir string
	dialer    *countingDialer
	archiver  *fakeArchiver
	space     *fakeSpace
	notifier  *recordingNotifier
	opts      BackupOptions
	limit     int
	today     time.Time
}

func newFixture(t *testing.T, folders ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		sourceDir: filepath.Join(base, "source"),
		workDir:   filepath.Join(base, "work"),
		remoteDir: filepath.Join(base, "remote"),
		archiver:  &fakeArchiver{fail: map[string]error{}},
		space:     &fakeSpace{short: map[string]bool{}},
		notifier:  &recordingNotifier{},
		limit:     5,
		today:     time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC),
	}
	if err := os.MkdirAll(f.sourceDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range folders {
		dir := filepath.Join(f.sourceDir, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("content of "+name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	f.dialer = &countingDialer{inner: remote.NewLocal(config.RemoteConfig{Host: f.remoteDir, Root: "/"})}
	f.opts = BackupOptions{
		SourceDir: f.sourceDir,
		TempDir:   filepath.Join(f.workDir, "tmp"),
		Prefix:    "backups-",
		Retry:     retry.Options{MaxAttempts: 3, Delay: 0},
	}
	return f
}

func (f *fixture) backup() *Backup {
	uc := NewBackup(f.dialer, f.archiver, f.space, NewRetention(f.opts.Prefix, f.limit, testLogger{}),
		f.notifier, testLogger{}, f.opts)
	uc.now = func() time.Time { return f.today }
	return uc
}

func (f *fixture) remoteSet(t *testing.T, name string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(f.remoteDir, name), 0755); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) remoteSets(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.remoteDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

func setName(day int) string {
	return fmt.Sprintf("backups-2024-01-%02d", day)
}

var errBoom = errors.New("boom")
