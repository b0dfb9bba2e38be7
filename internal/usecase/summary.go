package usecase

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/semmidev/folderbak/internal/domain"
)

// SummaryPlaceholder replaces the size list when any folder cannot be sized.
const SummaryPlaceholder = "....failed to get backups list...."

// SizeSummary lists each uploaded folder with its on-disk size, one per line.
func SizeSummary(run *domain.BackupRun, sizeFunc func(string) (int64, error)) string {
	var lines []string
	for _, job := range run.Jobs {
		if job.Status != domain.FolderUploaded {
			continue
		}
		size, err := sizeFunc(job.SourcePath)
		if err != nil {
			return SummaryPlaceholder
		}
		lines = append(lines, fmt.Sprintf("%s\t%s", humanize.IBytes(uint64(size)), job.Name))
	}
	return strings.Join(lines, "\n")
}

func successMessage(run *domain.BackupRun, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backup %s completed: %d folder(s) uploaded", run.Destination, run.Count(domain.FolderUploaded))
	if summary != "" {
		fmt.Fprintf(&b, "\n%s", summary)
	}
	if skipped := run.Names(domain.FolderSkippedNoSpace); len(skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped for insufficient space: %s", strings.Join(skipped, ", "))
	}
	return b.String()
}

func skipMessage(job *domain.FolderJob, decision domain.SpaceDecision) string {
	return fmt.Sprintf("Not enough free space to back up %s: need %s, have %s. Folder skipped.",
		job.Name, humanize.IBytes(decision.Required), humanize.IBytes(decision.Free))
}
