package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by a component wraps exactly one of
// these, so callers can classify with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrRetention     = errors.New("retention error")
	ErrArchive       = errors.New("archive error")
	ErrUpload        = errors.New("upload error")
	ErrNotification  = errors.New("notification error")
)

// OpError carries the folder and operation a failure happened in.
type OpError struct {
	Kind   error
	Op     string
	Folder string
	Err    error
}

func (e *OpError) Error() string {
	if e.Folder != "" {
		return fmt.Sprintf("%s: %s [%s]: %v", e.Kind, e.Op, e.Folder, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Wrap returns nil when err is nil.
func Wrap(kind error, op, folder string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Kind: kind, Op: op, Folder: folder, Err: err}
}
