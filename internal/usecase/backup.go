package usecase

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/semmidev/folderbak/internal/adapter/source"
	"github.com/semmidev/folderbak/internal/domain"
	"github.com/semmidev/folderbak/internal/infrastructure/disk"
	"github.com/semmidev/folderbak/internal/retry"
)

const notifyTimeout = 30 * time.Second

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type SpaceChecker interface {
	Check(path string) domain.SpaceDecision
}

type BackupOptions struct {
	SourceDir   string
	TempDir     string
	Prefix      string
	OnlyOnError bool
	Retry       retry.Options
}

// Backup runs one backup pass: prune old sets, create today's set, then
// archive and upload every source folder in order. Any folder failure
// aborts the pass; folders without enough local space are skipped.
type Backup struct {
	dialer    domain.Dialer
	archiver  domain.Archiver
	space     SpaceChecker
	retention *Retention
	notifier  domain.Notifier
	logger    Logger
	opts      BackupOptions

	now         func() time.Time
	listFolders func(root string) ([]string, error)
	folderSize  func(path string) (int64, error)
}

func NewBackup(
	dialer domain.Dialer,
	archiver domain.Archiver,
	space SpaceChecker,
	retention *Retention,
	notifier domain.Notifier,
	logger Logger,
	opts BackupOptions,
) *Backup {
	return &Backup{
		dialer:      dialer,
		archiver:    archiver,
		space:       space,
		retention:   retention,
		notifier:    notifier,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
		listFolders: source.ListFolders,
		folderSize:  disk.Size,
	}
}

// Destination names the backup set for the given day.
func Destination(prefix string, day time.Time) string {
	return prefix + day.Format("2006-01-02")
}

// Execute performs a run and reports its outcome. On failure exactly one
// error notification has been attempted and the error is returned; the
// caller decides how the process exits.
func (uc *Backup) Execute(ctx context.Context) (*domain.BackupRun, error) {
	started := uc.now()
	run := &domain.BackupRun{
		StartedAt:   started,
		Destination: Destination(uc.opts.Prefix, started),
	}
	uc.logger.Infof("Starting backup into %s", run.Destination)

	if err := uc.process(ctx, run); err != nil {
		run.Outcome = domain.OutcomeFailure
		uc.logger.Errorf("Backup failed: %v", err)
		uc.notify(ctx, domain.Message{Text: err.Error(), IsError: true})
		return run, err
	}

	switch run.Outcome {
	case domain.OutcomeNothing:
		uc.logger.Infof("No folders to backup in %s", uc.opts.SourceDir)
		if !uc.opts.OnlyOnError {
			uc.notify(ctx, domain.Message{Text: fmt.Sprintf("No folders to backup in %s", uc.opts.SourceDir)})
		}
	default:
		summary := SizeSummary(run, uc.folderSize)
		uc.logger.Infof("Backup %s finished in %s (%s)", run.Destination,
			uc.now().Sub(started).Round(time.Second), run.Outcome)
		if !uc.opts.OnlyOnError {
			uc.notify(ctx, domain.Message{Text: successMessage(run, summary)})
		}
	}

	return run, nil
}

func (uc *Backup) process(ctx context.Context, run *domain.BackupRun) error {
	if err := os.MkdirAll(uc.opts.TempDir, 0755); err != nil {
		return domain.Wrap(domain.ErrConfiguration, "prepare work directory", "", err)
	}

	if err := uc.prepareDestination(ctx, run); err != nil {
		return err
	}

	folders, err := uc.listFolders(uc.opts.SourceDir)
	if err != nil {
		return err
	}
	run.Folders = folders
	if len(folders) == 0 {
		run.Outcome = domain.OutcomeNothing
		return nil
	}
	uc.logger.Infof("Folders to backup: %v", folders)

	for _, name := range folders {
		job := uc.newJob(run, name)
		run.Jobs = append(run.Jobs, job)
		if err := uc.processFolder(ctx, job); err != nil {
			job.Status = domain.FolderFailed
			return err
		}
	}

	run.Outcome = domain.OutcomeSuccess
	if run.Count(domain.FolderSkippedNoSpace) > 0 {
		run.Outcome = domain.OutcomePartial
	}
	return nil
}

// prepareDestination prunes expired sets and creates today's set over a
// single session.
func (uc *Backup) prepareDestination(ctx context.Context, run *domain.BackupRun) error {
	session, err := uc.dialer.Connect(ctx)
	if err != nil {
		return err
	}
	defer uc.closeSession(session)

	if _, err := uc.retention.Prune(ctx, session); err != nil {
		return err
	}

	if err := session.EnsureDir(ctx, run.Destination); err != nil {
		return domain.Wrap(domain.ErrConnection, "create directory "+run.Destination, "", err)
	}
	return nil
}

func (uc *Backup) newJob(run *domain.BackupRun, name string) *domain.FolderJob {
	file := name + "." + uc.archiver.Extension()
	return &domain.FolderJob{
		Name:        name,
		SourcePath:  uc.resolveSource(name),
		ArchivePath: filepath.Join(uc.opts.TempDir, file),
		RemotePath:  path.Join(run.Destination, file),
		Status:      domain.FolderPending,
	}
}

// resolveSource returns the real path of a source folder. Folders may be
// symlinks to directories; every later stage works on the link target.
func (uc *Backup) resolveSource(name string) string {
	p := filepath.Join(uc.opts.SourceDir, name)
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		uc.logger.Warnf("[%s] Failed to resolve %s: %v", name, p, err)
		return p
	}
	return resolved
}

func (uc *Backup) processFolder(ctx context.Context, job *domain.FolderJob) error {
	decision := uc.space.Check(job.SourcePath)
	job.SizeBytes = decision.Size
	if !decision.Sufficient {
		job.Status = domain.FolderSkippedNoSpace
		uc.logger.Warnf("[%s] Skipped: need %d bytes, %d free", job.Name, decision.Required, decision.Free)
		uc.notify(ctx, domain.Message{Text: skipMessage(job, decision), IsError: true})
		return nil
	}

	uc.logger.Infof("[%s] Creating archive %s", job.Name, job.ArchivePath)
	if err := uc.archiver.Archive(ctx, job); err != nil {
		return err
	}
	job.Status = domain.FolderArchived

	if err := uc.uploadWithRetry(ctx, job); err != nil {
		return err
	}
	job.Status = domain.FolderUploaded
	uc.logger.Infof("[%s] Uploaded archive to %s", job.Name, job.RemotePath)

	if err := os.Remove(job.ArchivePath); err != nil {
		uc.logger.Warnf("[%s] Failed to remove local archive: %v", job.Name, err)
	}
	return nil
}

func (uc *Backup) uploadWithRetry(ctx context.Context, job *domain.FolderJob) error {
	opts := uc.opts.Retry
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		uc.logger.Warnf("[%s] Upload attempt %d failed, retrying in %s: %v", job.Name, attempt, wait, err)
	}

	err := retry.Do(ctx, opts, func(ctx context.Context, attempt int) error {
		job.Attempts = attempt
		return uc.upload(ctx, job)
	})
	return domain.Wrap(domain.ErrUpload, "upload "+job.RemotePath, job.Name, err)
}

// upload opens a fresh session for every attempt so a dropped connection
// does not poison the retries.
func (uc *Backup) upload(ctx context.Context, job *domain.FolderJob) error {
	session, err := uc.dialer.Connect(ctx)
	if err != nil {
		return err
	}
	defer uc.closeSession(session)

	return session.Upload(ctx, job.ArchivePath, job.RemotePath)
}

func (uc *Backup) closeSession(session domain.Session) {
	if err := session.Close(); err != nil {
		uc.logger.Debugf("Closing remote session: %v", err)
	}
}

// notify never fails the run. It outlives cancellation of ctx so a signal
// still produces the failure message.
func (uc *Backup) notify(ctx context.Context, msg domain.Message) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := uc.notifier.Notify(nctx, msg); err != nil {
		uc.logger.Errorf("Failed to send notification: %v", err)
	}
}
