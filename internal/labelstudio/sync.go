package labelstudio

import (
	"context"

	"github.com/rs/zerolog/log"
)

// SyncReport counts the outcome of a SyncAll run.
type SyncReport struct {
	Projects       int
	ImportsSynced  int
	ExportsSynced  int
	NoStorage      int
	Failures       int
	FailedProjects []string
}

// SyncAll syncs the import then export storage of every project. A failing
// project is logged and counted; the remaining projects are still synced.
// Only a failure to list projects is returned as an error.
func (c *Client) SyncAll(ctx context.Context) (*SyncReport, error) {
	projects, err := c.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	report := &SyncReport{Projects: len(projects)}
	if len(projects) == 0 {
		log.Info().Msg("No Label Studio projects found, nothing to sync")
		return report, nil
	}

	for _, id := range projects {
		failed := false
		for _, kind := range []StorageKind{ImportStorage, ExportStorage} {
			synced, err := c.syncStorage(ctx, kind, id)
			switch {
			case err != nil:
				log.Error().Err(err).Str("project", id).Str("kind", string(kind)).Msg("Storage sync failed")
				failed = true
			case !synced:
				report.NoStorage++
			case kind == ImportStorage:
				report.ImportsSynced++
			default:
				report.ExportsSynced++
			}
		}
		if failed {
			report.Failures++
			report.FailedProjects = append(report.FailedProjects, id)
		}
	}

	log.Info().
		Int("projects", report.Projects).
		Int("importsSynced", report.ImportsSynced).
		Int("exportsSynced", report.ExportsSynced).
		Int("noStorage", report.NoStorage).
		Int("failures", report.Failures).
		Msg("Label Studio storage sync complete")
	return report, nil
}
