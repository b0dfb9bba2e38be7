package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/semmidev/folderbak/internal/domain"
)

// HiddenPrefix marks entries that are never backed up.
const HiddenPrefix = "."

// ListFolders returns the names of the immediate subdirectories of root,
// hidden ones excluded, in lexicographic order. Symlinks count when they
// resolve to a directory.
func ListFolders(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, domain.Wrap(domain.ErrConfiguration, "list folders", "", fmt.Errorf("SOURCE_DIR is not set"))
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConfiguration, "list folders", "", fmt.Errorf("read %s: %w", root, err))
	}

	folders := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, HiddenPrefix) {
			continue
		}
		if !isDir(root, entry) {
			continue
		}
		folders = append(folders, name)
	}

	sort.Strings(folders)
	return folders, nil
}

func isDir(root string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, entry.Name()))
	return err == nil && info.IsDir()
}
