package plugins

import (
	"context"
	"os"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// Install resolves providerName's versions for projectID, picks versionID
// if given (else the first returned version), downloads its primary file
// into the instance's mods/plugins directory, and appends a provenance
// entry to the sidecar keyed by the resulting filename (spec §4.8's
// "Install").
func (e *Engine) Install(ctx context.Context, instancePath, providerName, projectID, versionID, gameVersion, loader string) (string, error) {
	provider, err := e.providers.Get(providerName)
	if err != nil {
		return "", err
	}

	dir := e.dir(instancePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "create "+string(e.kind)+" directory", err)
	}

	versions, err := provider.GetVersions(ctx, projectID, gameVersion, loader)
	if err != nil {
		return "", err
	}

	version, err := pickVersion(versions, versionID)
	if err != nil {
		return "", err
	}

	filename, err := provider.DownloadVersion(ctx, version, dir)
	if err != nil {
		return "", err
	}

	side := loadSidecar(e.sidecarPath(instancePath))
	side.Sources[filename] = Provenance{
		ProjectID:        projectID,
		Provider:         providerName,
		CurrentVersionID: version.ID,
	}
	if err := side.save(e.sidecarPath(instancePath)); err != nil {
		return "", err
	}

	return filename, nil
}

func pickVersion(versions []ProjectVersion, versionID string) (ProjectVersion, error) {
	if versionID != "" {
		for _, v := range versions {
			if v.ID == versionID {
				return v, nil
			}
		}
		return ProjectVersion{}, errors.NotFound("project version", versionID)
	}
	if len(versions) == 0 {
		return ProjectVersion{}, errors.New(errors.ErrCodeNotFound, "no versions available for this project")
	}
	return versions[0], nil
}
