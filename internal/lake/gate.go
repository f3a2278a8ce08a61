package lake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Result reports every structural violation found in one pass, so an
// operator sees the complete picture instead of the first failure.
type Result struct {
	OK        bool
	Missing   []string
	EmptyDirs []string
}

// Detail renders the violations as a single registry-friendly string.
func (r Result) Detail() string {
	if r.OK {
		return "all_required_present"
	}
	parts := make([]string, 0, 2)
	if len(r.Missing) > 0 {
		parts = append(parts, "missing_datasets="+strings.Join(r.Missing, " "))
	}
	if len(r.EmptyDirs) > 0 {
		parts = append(parts, "empty_datasets="+strings.Join(r.EmptyDirs, " "))
	}
	return strings.Join(parts, " ")
}

// Check verifies that each required dataset exists as a directory under
// runDir and contains at least one data file. It inspects structure only,
// never content, and is free of side effects so it can be called any number
// of times.
func Check(runDir string, required []string) (Result, error) {
	result := Result{}
	for _, dataset := range required {
		dir := filepath.Join(runDir, filepath.FromSlash(dataset))
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				result.Missing = append(result.Missing, dataset)
				continue
			}
			return Result{}, fmt.Errorf("stat %s: %w", dataset, err)
		}
		if !info.IsDir() {
			result.Missing = append(result.Missing, dataset)
			continue
		}
		hasData, err := hasDataFile(dir)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", dataset, err)
		}
		if !hasData {
			result.EmptyDirs = append(result.EmptyDirs, dataset)
		}
	}
	result.OK = len(result.Missing) == 0 && len(result.EmptyDirs) == 0
	return result, nil
}

// DatasetPresent reports whether one dataset directory exists under runDir.
func DatasetPresent(runDir, dataset string) bool {
	info, err := os.Stat(filepath.Join(runDir, filepath.FromSlash(dataset)))
	return err == nil && info.IsDir()
}

// hasDataFile reports whether dir directly contains at least one data file.
// Marker and hidden entries (dot or underscore prefixed) do not count.
func hasDataFile(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		if entry.Type().IsRegular() {
			return true, nil
		}
	}
	return false, nil
}
