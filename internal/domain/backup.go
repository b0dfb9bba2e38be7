package domain

import "time"

// FolderStatus is the terminal (or current) state of a single folder in a run.
type FolderStatus string

const (
	FolderPending        FolderStatus = "pending"
	FolderArchived       FolderStatus = "archived"
	FolderUploaded       FolderStatus = "uploaded"
	FolderSkippedNoSpace FolderStatus = "skipped-insufficient-space"
	FolderFailed         FolderStatus = "failed"
)

// Outcome summarizes a whole run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
	OutcomeNothing Outcome = "nothing"
)

// BackupRun is the per-run context handed to every component. It replaces
// any process-wide state: one value is built at the start of a run and
// discarded when it ends.
type BackupRun struct {
	StartedAt   time.Time
	Destination string
	Folders     []string
	Jobs        []*FolderJob
	Outcome     Outcome
}

// FolderJob tracks one folder through space check, archive and upload.
type FolderJob struct {
	Name        string
	SourcePath  string
	ArchivePath string
	RemotePath  string
	Attempts    int
	SizeBytes   int64
	Status      FolderStatus
}

// Count returns how many jobs ended in the given status.
func (r *BackupRun) Count(status FolderStatus) int {
	n := 0
	for _, job := range r.Jobs {
		if job.Status == status {
			n++
		}
	}
	return n
}

// Names returns the folder names of jobs with the given status, in run order.
func (r *BackupRun) Names(status FolderStatus) []string {
	var names []string
	for _, job := range r.Jobs {
		if job.Status == status {
			names = append(names, job.Name)
		}
	}
	return names
}

// SpaceDecision is the outcome of a free space check for one folder.
type SpaceDecision struct {
	Size       int64
	Required   uint64
	Free       uint64
	Sufficient bool
}
