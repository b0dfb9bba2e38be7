package domain

import "context"

// Archiver turns a folder into a single compressed archive at job.ArchivePath.
type Archiver interface {
	Archive(ctx context.Context, job *FolderJob) error
	Extension() string
}
