package source

import (
	"github.com/semmidev/folderbak/internal/domain"
	"github.com/semmidev/folderbak/internal/infrastructure/disk"
)

type Logger interface {
	Warnf(template string, args ...interface{})
}

// SpaceChecker decides whether a folder fits on the filesystem that holds
// the temporary archives. It never fails: when the folder size cannot be
// computed the size counts as zero, and when free space cannot be read the
// check passes. A broken probe must not block a backup.
type SpaceChecker struct {
	workDir  string
	copyMode bool
	logger   Logger
	sizeFunc func(string) (int64, error)
	freeFunc func(string) (uint64, error)
}

func NewSpaceChecker(workDir string, copyMode bool, logger Logger) *SpaceChecker {
	return &SpaceChecker{
		workDir:  workDir,
		copyMode: copyMode,
		logger:   logger,
		sizeFunc: disk.Size,
		freeFunc: disk.FreeSpace,
	}
}

// Multiplier is 2 in copy mode, where the mirror and the archive coexist.
func (s *SpaceChecker) Multiplier() uint64 {
	if s.copyMode {
		return 2
	}
	return 1
}

func (s *SpaceChecker) Check(path string) domain.SpaceDecision {
	size, err := s.sizeFunc(path)
	if err != nil {
		s.logger.Warnf("Could not compute size of %s, assuming 0: %v", path, err)
		size = 0
	}

	decision := domain.SpaceDecision{
		Size:     size,
		Required: uint64(size) * s.Multiplier(),
	}

	free, err := s.freeFunc(s.workDir)
	if err != nil {
		s.logger.Warnf("Could not read free space of %s, skipping space check: %v", s.workDir, err)
		decision.Sufficient = true
		return decision
	}

	decision.Free = free
	decision.Sufficient = free >= decision.Required
	return decision
}
