package plugins

import (
	"encoding/json"
	"os"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// sidecarEntry pairs a cached metadata record with the mtime it was
// extracted at, per spec §6's sidecar cache format.
type sidecarEntry struct {
	LastModified int64         `json:"last_modified"`
	Metadata     InstalledItem `json:"metadata"`
}

// sidecar is the on-disk cache rewritten whole on every update (spec §5:
// "sidecar JSON files are rewritten whole; concurrent writes ... serialized
// by the caller").
type sidecar struct {
	Entries map[string]sidecarEntry  `json:"entries"`
	Sources map[string]Provenance    `json:"sources"`
}

func newSidecar() *sidecar {
	return &sidecar{Entries: map[string]sidecarEntry{}, Sources: map[string]Provenance{}}
}

// loadSidecar reads path, returning an empty sidecar if it doesn't exist or
// fails to parse — a corrupt or missing cache is never fatal to Listing,
// matching the Rust original's `unwrap_or_default()` behavior.
func loadSidecar(path string) *sidecar {
	data, err := os.ReadFile(path)
	if err != nil {
		return newSidecar()
	}
	var s sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return newSidecar()
	}
	if s.Entries == nil {
		s.Entries = map[string]sidecarEntry{}
	}
	if s.Sources == nil {
		s.Sources = map[string]Provenance{}
	}
	return &s
}

func (s *sidecar) save(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "encode sidecar cache", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "write sidecar cache", err)
	}
	return nil
}
