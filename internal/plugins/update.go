package plugins

import "context"

// CheckUpdates asks each installed item's recorded provider for its latest
// version, emitting an UpdateDescriptor wherever the latest version id
// differs from the stored current version id (spec §4.8's "Update check").
// Items with no provenance are skipped — there is nothing to check them
// against. Per-item provider failures are skipped rather than aborting the
// whole scan, matching original_source's check_for_updates, which
// discards a failed get_versions call with `if let Ok(...)`.
func (e *Engine) CheckUpdates(ctx context.Context, instancePath, gameVersion, loader string) ([]UpdateDescriptor, error) {
	installed, err := e.List(instancePath)
	if err != nil {
		return nil, err
	}

	var updates []UpdateDescriptor
	for _, item := range installed {
		if item.Source == nil {
			continue
		}
		provider, err := e.providers.Get(item.Source.Provider)
		if err != nil {
			continue
		}
		versions, err := provider.GetVersions(ctx, item.Source.ProjectID, gameVersion, loader)
		if err != nil || len(versions) == 0 {
			continue
		}
		latest := versions[0]
		if latest.ID == item.Source.CurrentVersionID {
			continue
		}
		updates = append(updates, UpdateDescriptor{
			Filename:        item.Filename,
			CurrentVersion:  item.Version,
			LatestVersion:   latest.VersionName,
			LatestVersionID: latest.ID,
			ProjectID:       item.Source.ProjectID,
			Provider:        item.Source.Provider,
		})
	}
	return updates, nil
}
