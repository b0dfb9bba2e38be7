package domain

import "context"

type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDir
)

// RemoteEntry is one item of a remote directory listing.
type RemoteEntry struct {
	Name string
	Kind EntryKind
}

// Dialer opens sessions against the remote endpoint.
type Dialer interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is an open connection to the remote endpoint. Paths are relative
// to the configured remote root.
type Session interface {
	List(ctx context.Context) ([]RemoteEntry, error)
	EnsureDir(ctx context.Context, path string) error
	RemoveDirRecursive(ctx context.Context, path string) error
	Upload(ctx context.Context, localPath string, remotePath string) error
	Close() error
}
