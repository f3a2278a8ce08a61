package registry

import (
	"github.com/cratelabs/discolake/internal/domain"
)

// LatestPerRun reduces the event stream to the most recent event per run.
// Events must arrive in insertion order; a timestamp tie resolves to the
// later-appended event. The projection is pure: replaying the same stream
// always yields the same mapping.
func LatestPerRun(events []domain.RunEvent) map[string]domain.RunEvent {
	latest := make(map[string]domain.RunEvent, len(events))
	for _, event := range events {
		current, ok := latest[event.RunID]
		if !ok || !event.OccurredAt.Before(current.OccurredAt) {
			latest[event.RunID] = event
		}
	}
	return latest
}

// LatestPerRunPerKPI reduces the KPI stream to the most recent snapshot per
// (run, kpi). A later failed computation supersedes an earlier value, so
// consumers never report a stale number as current.
func LatestPerRunPerKPI(events []domain.KPIEvent) map[string]map[string]domain.KPIEvent {
	latest := make(map[string]map[string]domain.KPIEvent)
	for _, event := range events {
		perKPI, ok := latest[event.RunID]
		if !ok {
			perKPI = make(map[string]domain.KPIEvent)
			latest[event.RunID] = perKPI
		}
		current, ok := perKPI[event.KPIName]
		if !ok || !event.ComputedAt.Before(current.ComputedAt) {
			perKPI[event.KPIName] = event
		}
	}
	return latest
}

// ValidatedRuns filters the latest projection to runs whose most recent
// classification allows KPI computation or export.
func ValidatedRuns(latest map[string]domain.RunEvent) []domain.RunEvent {
	out := make([]domain.RunEvent, 0, len(latest))
	for _, event := range latest {
		if event.Kind == domain.EventValidationPassed {
			out = append(out, event)
		}
	}
	return out
}
