package lake

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cratelabs/discolake/internal/domain"
)

func TestListRunsFiltersAndSorts(t *testing.T) {
	lakeRoot := t.TempDir()
	for _, name := range []string{
		"2026-02__20260220_120000",
		"20260101_000000",
		"not-a-run",
		".hidden",
	} {
		if err := os.MkdirAll(filepath.Join(lakeRoot, "_runs", name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
	// A stray file with a valid-looking name must be ignored.
	if err := os.WriteFile(filepath.Join(lakeRoot, "_runs", "20260303_000000"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ids, err := ListRuns(lakeRoot)
	if err != nil {
		t.Fatalf("ListRuns err=%v", err)
	}
	got := make([]string, len(ids))
	for i, id := range ids {
		got[i] = id.String()
	}
	want := []string{"2026-02__20260220_120000", "20260101_000000"}
	if len(got) != len(want) {
		t.Fatalf("ListRuns=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListRuns=%v, want %v", got, want)
		}
	}
}

func TestListRunsMissingRunsDir(t *testing.T) {
	_, err := ListRuns(t.TempDir())
	if err == nil {
		t.Fatalf("expected error for missing runs dir")
	}
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("kind=%v, want configuration", err)
	}
}
