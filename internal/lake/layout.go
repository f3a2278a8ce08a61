package lake

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cratelabs/discolake/internal/domain"
)

// RunsDir is the directory under the lake root holding all runs.
func RunsDir(lakeRoot string) string {
	return filepath.Join(lakeRoot, domain.RunsDirName)
}

// RunDir is the absolute directory of one run.
func RunDir(lakeRoot string, id domain.RunID) string {
	return filepath.Join(lakeRoot, domain.RunsDirName, id.String())
}

// ListRuns enumerates run directories whose names match an accepted run id
// shape, sorted ascending. Entries that are not directories or do not parse
// are ignored.
func ListRuns(lakeRoot string) ([]domain.RunID, error) {
	runsDir := RunsDir(lakeRoot)
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.E(domain.KindConfiguration, "runs dir not found: %s", runsDir)
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	ids := make([]domain.RunID, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := domain.ParseRunID(entry.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
