package lake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
)

const (
	activeName   = "active"
	backupPrefix = "active__prev_"
)

// Pointer is the single indirection deciding which run consumers see.
// Updates follow a relocate-before-create protocol: an existing link is
// first renamed to a timestamped backup alias, then the new link is
// created. Backups are never overwritten or deleted here.
//
// No lock is layered on top: with a single promoting process the protocol
// is safe, and a second concurrent promoter loses at verification time
// because the link no longer names its candidate.
type Pointer struct {
	lakeRoot string
	now      func() time.Time
}

func NewPointer(lakeRoot string) *Pointer {
	return &Pointer{lakeRoot: lakeRoot, now: time.Now}
}

func (p *Pointer) path() string {
	return filepath.Join(p.lakeRoot, activeName)
}

// Resolve returns the run the pointer names. ok is false when no pointer
// exists. A pointer whose target is not a run is an error.
func (p *Pointer) Resolve() (domain.RunID, bool, error) {
	target, err := os.Readlink(p.path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RunID{}, false, nil
		}
		return domain.RunID{}, false, fmt.Errorf("read active pointer: %w", err)
	}
	rel := filepath.ToSlash(target)
	prefix := domain.RunsDirName + "/"
	if !strings.HasPrefix(rel, prefix) {
		return domain.RunID{}, false, fmt.Errorf("active pointer target outside %s: %q", domain.RunsDirName, target)
	}
	id, err := domain.ParseRunID(strings.TrimPrefix(rel, prefix))
	if err != nil {
		return domain.RunID{}, false, fmt.Errorf("active pointer target %q: %w", target, err)
	}
	return id, true, nil
}

// Repoint publishes id. Any existing pointer is first relocated to a
// uniquely timestamped backup alias; the returned backup name is empty when
// no prior pointer existed. The new link target is relative to the lake
// root so the pointer stays portable.
func (p *Pointer) Repoint(id domain.RunID) (string, error) {
	backup := ""
	if _, err := os.Lstat(p.path()); err == nil {
		backup = backupPrefix + p.now().UTC().Format("20060102_150405")
		if err := os.Rename(p.path(), filepath.Join(p.lakeRoot, backup)); err != nil {
			return "", fmt.Errorf("backup active pointer: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat active pointer: %w", err)
	}

	if err := os.Symlink(filepath.FromSlash(id.ActiveTarget()), p.path()); err != nil {
		return backup, fmt.Errorf("create active pointer: %w", err)
	}
	return backup, nil
}

// Restore undoes a Repoint: the current link is removed and the backup
// alias renamed back into place. With an empty backup name the pointer is
// simply removed, restoring the no-pointer state.
func (p *Pointer) Restore(backup string) error {
	if err := os.Remove(p.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove active pointer: %w", err)
	}
	if backup == "" {
		return nil
	}
	if err := os.Rename(filepath.Join(p.lakeRoot, backup), p.path()); err != nil {
		return fmt.Errorf("restore active pointer: %w", err)
	}
	return nil
}

// ResolvedDir is the published run directory as consumers reach it,
// through the pointer rather than the run's own path.
func (p *Pointer) ResolvedDir() string {
	return p.path()
}
