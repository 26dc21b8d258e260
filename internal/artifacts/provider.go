// Package artifacts implements the Artifact Pipeline (spec §4.7): querying
// available server/loader versions from each upstream provider, downloading
// and verifying the resulting jars, and running mod-loader installer helper
// JVMs where a provider needs one. Pipeline implements
// internal/supervisor.ArtifactEnsurer, so the Supervisor can materialize an
// instance's files on first start without knowing which loader it is.
package artifacts

import (
	"context"
	"fmt"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// Provider is one upstream source of server jars: vanilla Mojang, a
// mod-loader installer (Fabric/Quilt/Forge/NeoForge), a prebuilt fork
// (Paper/Purpur), or a proxy (Velocity/BungeeCord).
type Provider interface {
	// Name is the loader identifier stored on domain.Instance.ModLoader.
	Name() string

	// GetVersions lists the loader/build versions available for mcVersion,
	// newest first. Providers with no per-Minecraft-version concept
	// (proxies) ignore mcVersion and return their own build list.
	GetVersions(ctx context.Context, mcVersion string) ([]string, error)

	// Install materializes the server's launch artifacts into dir for the
	// given mcVersion/loaderVersion pair, invoking an installer helper JVM
	// if the loader needs one. onProgress reports download progress;
	// onLog receives every line of installer stdout/stderr.
	Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error
}

// InstallRequest carries everything a Provider needs to materialize one
// instance's server files.
type InstallRequest struct {
	Dir           string
	MCVersion     string
	LoaderVersion string
}

// ProgressFunc reports bytes transferred during a download. total is 0 when
// the remote did not report a size.
type ProgressFunc func(current, total int64, message string)

// LogFunc receives one line of installer subprocess output.
type LogFunc func(line string)

// Registry looks providers up by the loader name stored on domain.Instance.
type Registry struct {
	byName map[string]Provider
}

// NewRegistry builds a Registry from the given providers, keyed by Name().
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.byName[p.Name()] = p
	}
	return r
}

// Get returns the provider registered under name, or a NOT_FOUND error.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, errors.NotFound("artifact provider", name)
	}
	return p, nil
}

// Names returns every registered provider name, for the version-listing
// "available loaders" operation (spec §4.7 query.rs equivalent).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

func noVersionsErr(loader, mcVersion string) error {
	return fmt.Errorf("artifacts: no %s versions available for Minecraft %s", loader, mcVersion)
}
