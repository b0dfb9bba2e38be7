package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/semmidev/folderbak/internal/domain"
)

const DefaultBackupsLimit = 5

// ExpiredSets returns the backup sets to delete so that, once today's set
// is created, no more than limit sets exist. Only directories whose name
// starts with prefix count; names sort chronologically because the date
// is zero-padded.
func ExpiredSets(entries []domain.RemoteEntry, prefix string, limit int) []string {
	if limit <= 0 {
		limit = DefaultBackupsLimit
	}

	var sets []string
	for _, e := range entries {
		if e.Kind == domain.EntryDir && strings.HasPrefix(e.Name, prefix) {
			sets = append(sets, e.Name)
		}
	}
	sort.Strings(sets)

	if len(sets) < limit {
		return nil
	}
	return sets[:len(sets)-limit+1]
}

type Retention struct {
	prefix string
	limit  int
	logger Logger
}

func NewRetention(prefix string, limit int, logger Logger) *Retention {
	return &Retention{
		prefix: prefix,
		limit:  limit,
		logger: logger,
	}
}

// Prune deletes expired backup sets and returns their names. The first
// failure stops pruning.
func (r *Retention) Prune(ctx context.Context, session domain.Session) ([]string, error) {
	entries, err := session.List(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrRetention, "list backup sets", "", err)
	}

	expired := ExpiredSets(entries, r.prefix, r.limit)
	deleted := make([]string, 0, len(expired))
	for _, name := range expired {
		r.logger.Infof("Deleting old backup set: %s", name)
		if err := session.RemoveDirRecursive(ctx, name); err != nil {
			return deleted, domain.Wrap(domain.ErrRetention, "delete backup set "+name, "", err)
		}
		deleted = append(deleted, name)
	}

	r.logger.Infof("Deleted %d old backup set(s), keeping at most %d", len(deleted), r.effectiveLimit())
	return deleted, nil
}

func (r *Retention) effectiveLimit() int {
	if r.limit <= 0 {
		return DefaultBackupsLimit
	}
	return r.limit
}
