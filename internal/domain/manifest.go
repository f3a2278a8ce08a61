package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFileName is the optional per-run metadata file.
const ManifestFileName = "run_manifest.json"

const (
	RunModeDev  = "dev"
	RunModeProd = "prod"
)

// Manifest carries advisory run metadata. It is never required for
// correctness: a missing or malformed manifest degrades to a warning.
type Manifest struct {
	DumpMonth      string `json:"dump_month"`
	DumpDate       string `json:"dump_date"`
	RunMode        string `json:"run_mode"`
	SourceRevision string `json:"source_revision"`

	Git struct {
		SHA string `json:"sha"`
	} `json:"git"`
}

// Revision returns the source revision, falling back to the nested git
// field written by older ingestion runs.
func (m Manifest) Revision() string {
	if v := strings.TrimSpace(m.SourceRevision); v != "" {
		return v
	}
	return strings.TrimSpace(m.Git.SHA)
}

// LoadManifest reads run_manifest.json from runDir. An absent file yields a
// zero manifest and no error. A malformed file yields a zero manifest and a
// non-nil error the caller should log as a warning, never propagate.
func LoadManifest(runDir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(runDir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	m.DumpMonth = strings.TrimSpace(m.DumpMonth)
	m.DumpDate = strings.TrimSpace(m.DumpDate)
	m.RunMode = strings.TrimSpace(m.RunMode)
	return m, nil
}
