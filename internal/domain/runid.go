package domain

import (
	"path"
	"regexp"
	"strings"
)

// SchemaPrefix namespaces every per-run schema in the external catalog.
const SchemaPrefix = "discogs_r_"

var (
	// Plain timestamp id, optionally qualified with a dump date or month suffix.
	plainRunIDRe = regexp.MustCompile(`^\d{8}_\d{6}(__(\d{8}|\d{4}_\d{2}))?$`)
	// Month-qualified id.
	monthRunIDRe = regexp.MustCompile(`^\d{4}-\d{2}__\d{8}_\d{6}$`)
)

// RunID is a validated run identifier. The zero value is not a valid id.
type RunID struct {
	raw string
}

// ParseRunID validates candidate against the two accepted id shapes.
// Anything else, including path separators or catalog-unsafe characters,
// is rejected before any filesystem or catalog access.
func ParseRunID(candidate string) (RunID, error) {
	if candidate == "" {
		return RunID{}, E(KindFormat, "run id is required")
	}
	if !plainRunIDRe.MatchString(candidate) && !monthRunIDRe.MatchString(candidate) {
		return RunID{}, E(KindFormat, "invalid run id format: %q", candidate)
	}
	return RunID{raw: candidate}, nil
}

func (id RunID) String() string {
	return id.raw
}

func (id RunID) IsZero() bool {
	return id.raw == ""
}

// SchemaName derives the catalog-safe schema identifier: the namespace
// prefix plus the id with '-' replaced by '_'. The mapping stays injective
// across both id shapes because a plain id cannot begin with "NNNN_NN__".
func (id RunID) SchemaName() string {
	return SchemaPrefix + strings.ReplaceAll(id.raw, "-", "_")
}

// RunDir is the run's directory relative to the lake root.
func (id RunID) RunDir() string {
	return path.Join(RunsDirName, id.raw)
}

// ActiveTarget is the pointer target relative to the lake root, so the
// pointer stays portable across hosts mounting the lake at different paths.
func (id RunID) ActiveTarget() string {
	return id.RunDir()
}

// RunsDirName is the directory under the lake root holding all runs.
const RunsDirName = "_runs"
