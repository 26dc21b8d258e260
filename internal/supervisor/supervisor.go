// Package supervisor owns child-process lifecycle for every running
// instance: spawning, stdin/stdout/stderr plumbing, the status state
// machine, resource sampling, and log parsing (spec §4.6).
package supervisor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/internal/domain"
)

// InstanceSource is the subset of the Instance Registry the Supervisor
// needs: reading settings to compose a Config, and stamping last-run time
// on successful starts.
type InstanceSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Instance, error)
	UpdateLastRun(ctx context.Context, id uuid.UUID) error
}

// ArtifactEnsurer materializes the files a Config's launch command needs
// before the child is spawned (spec §4.6.2 "ensure artifacts"), installing
// via the Artifact Pipeline if they are missing. onLog receives every line
// the installer helper JVM writes to stdout/stderr, for forwarding onto the
// owning instance's log broadcast (spec §4.7 "installer output"). Implemented
// by internal/artifacts.
type ArtifactEnsurer interface {
	EnsureArtifacts(ctx context.Context, inst domain.Instance, onProgress func(cur, total int64, msg string), onLog func(line string)) error
}

// Supervisor keeps one ServerHandle per instance id in a concurrent map
// protected by a single mutex; all mutation of a handle happens through the
// handle's own fine-grained locks (spec §5 "Shared resources").
type Supervisor struct {
	mu        sync.Mutex
	handles   map[uuid.UUID]*ServerHandle
	registry  InstanceSource
	artifacts ArtifactEnsurer
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// New constructs a Supervisor. artifacts may be nil only in tests that never
// call Start.
func New(registry InstanceSource, artifacts ArtifactEnsurer, logger *logging.Logger, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		handles:   make(map[uuid.UUID]*ServerHandle),
		registry:  registry,
		artifacts: artifacts,
		logger:    logger,
		metrics:   m,
	}
}

// GetOrCreate returns the instance's handle, constructing it on first
// access by reading current settings and composing a Config (spec §4.6.2).
// Idempotent per instance.
func (s *Supervisor) GetOrCreate(ctx context.Context, id uuid.UUID) (*ServerHandle, error) {
	s.mu.Lock()
	if h, ok := s.handles[id]; ok {
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	inst, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg := ComposeConfig(inst)

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[id]; ok {
		return h, nil
	}
	h := newServerHandle(id, cfg, s.registry, s.artifacts, s.logger, s.metrics)
	s.handles[id] = h
	return h, nil
}

// Handle returns the instance's handle if one already exists, without
// constructing it.
func (s *Supervisor) Handle(id uuid.UUID) (*ServerHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

// StatusCounts returns the number of handles in each status, for metrics
// exposition.
func (s *Supervisor) StatusCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, h := range s.handles {
		counts[string(h.Status())]++
	}
	return counts
}

// Shutdown kills every running child, for use on process exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	handles := make([]*ServerHandle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		_ = h.Kill()
	}
}
