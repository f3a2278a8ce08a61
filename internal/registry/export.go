package registry

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
)

const (
	ExportFormatLong = "long"
	ExportFormatWide = "wide"
)

type ExportOptions struct {
	// Format selects long or wide output; empty means both.
	Format string
	// Timestamped appends a UTC stamp to the file names.
	Timestamped bool
	// IncludeActive also exports the currently published run.
	IncludeActive bool
	// OnlyRunID restricts the export to one run.
	OnlyRunID string
}

func (o ExportOptions) validate() error {
	switch o.Format {
	case "", ExportFormatLong, ExportFormatWide:
		return nil
	}
	return domain.E(domain.KindConfiguration, "invalid export format: %q", o.Format)
}

// Exporter writes the latest KPI projection to CSV reports.
type Exporter struct {
	store *Store
	dir   string
	now   func() time.Time
}

func NewExporter(store *Store, reportsDir string) *Exporter {
	return &Exporter{store: store, dir: reportsDir, now: time.Now}
}

// Export materializes the latest KPI values for exportable runs (latest
// classification validation_passed; active only on request) and returns
// the written file paths.
func (e *Exporter) Export(ctx context.Context, opts ExportOptions) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.OnlyRunID != "" {
		if _, err := domain.ParseRunID(opts.OnlyRunID); err != nil {
			return nil, err
		}
	}

	runEvents, err := e.store.ListRunEvents(ctx)
	if err != nil {
		return nil, err
	}
	kpiEvents, err := e.store.ListKPIEvents(ctx)
	if err != nil {
		return nil, err
	}

	selected := map[string]bool{}
	for runID, event := range LatestPerRun(runEvents) {
		if opts.OnlyRunID != "" && runID != opts.OnlyRunID {
			continue
		}
		if event.IsActive && !opts.IncludeActive {
			continue
		}
		exportable := event.Kind == domain.EventValidationPassed || event.Kind == domain.EventPromoted
		if !exportable && !(event.IsActive && opts.IncludeActive) {
			continue
		}
		selected[runID] = true
	}

	rows := make([]domain.KPIEvent, 0)
	for runID, perKPI := range LatestPerRunPerKPI(kpiEvents) {
		if !selected[runID] {
			continue
		}
		for _, event := range perKPI {
			rows = append(rows, event)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RunID != rows[j].RunID {
			return rows[i].RunID < rows[j].RunID
		}
		return rows[i].KPIName < rows[j].KPIName
	})

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}

	stamp := ""
	if opts.Timestamped {
		stamp = "_" + e.now().UTC().Format("20060102_150405")
	}

	var paths []string
	if opts.Format == "" || opts.Format == ExportFormatLong {
		path := filepath.Join(e.dir, "history_kpis_long_latest"+stamp+".csv")
		if err := writeLong(path, rows); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	if opts.Format == "" || opts.Format == ExportFormatWide {
		path := filepath.Join(e.dir, "history_kpis_wide_latest"+stamp+".csv")
		if err := writeWide(path, rows); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeLong(path string, rows []domain.KPIEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"event_ts_utc", "run_id", "schema_name", "kpi_name", "kpi_value", "status", "details"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.ComputedAt.UTC().Format(time.RFC3339),
			row.RunID,
			row.SchemaName,
			row.KPIName,
			strconv.FormatInt(row.Value, 10),
			string(row.Status),
			row.Detail,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// writeWide emits one row per run. Failed computations stay blank rather
// than showing a misleading zero.
func writeWide(path string, rows []domain.KPIEvent) error {
	kpiNames := map[string]bool{}
	type wideRow struct {
		schemaName string
		latest     time.Time
		values     map[string]string
	}
	byRun := map[string]*wideRow{}
	for _, row := range rows {
		kpiNames[row.KPIName] = true
		wr, ok := byRun[row.RunID]
		if !ok {
			wr = &wideRow{values: map[string]string{}}
			byRun[row.RunID] = wr
		}
		wr.schemaName = row.SchemaName
		if row.ComputedAt.After(wr.latest) {
			wr.latest = row.ComputedAt
		}
		if row.Status == domain.KPIStatusOK {
			wr.values[row.KPIName] = strconv.FormatInt(row.Value, 10)
		} else {
			wr.values[row.KPIName] = ""
		}
	}

	names := make([]string, 0, len(kpiNames))
	for name := range kpiNames {
		names = append(names, name)
	}
	sort.Strings(names)

	runIDs := make([]string, 0, len(byRun))
	for runID := range byRun {
		runIDs = append(runIDs, runID)
	}
	sort.Strings(runIDs)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"run_id", "schema_name", "event_ts_utc"}, names...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, runID := range runIDs {
		wr := byRun[runID]
		record := []string{runID, wr.schemaName, wr.latest.UTC().Format(time.RFC3339)}
		for _, name := range names {
			record = append(record, wr.values[name])
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
