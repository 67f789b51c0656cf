// Package roster holds the in-memory set of known identities shared by all
// gate sessions. The roster is published as immutable snapshots: a reload
// builds a new snapshot off to the side and swaps it in as a whole, so a
// reader holding a snapshot keeps a complete, consistent view for as long as
// it needs one.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/observability"
)

// Loader reads every known identity from the backing store.
type Loader interface {
	LoadIdentities(ctx context.Context) ([]models.Identity, error)
}

// Snapshot is one published version of the roster. It must not be modified.
type Snapshot struct {
	version    uint64
	identities []models.Identity
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) Len() int {
	return len(s.identities)
}

// At returns the identity at position i in roster order.
func (s *Snapshot) At(i int) models.Identity {
	return s.identities[i]
}

// Roster owns the current snapshot.
type Roster struct {
	loader  Loader
	current atomic.Pointer[Snapshot]

	// reloadMu serialises writers so versions are published in order.
	reloadMu sync.Mutex
	version  uint64
}

// New returns a roster holding an empty version-0 snapshot.
func New(loader Loader) *Roster {
	r := &Roster{loader: loader}
	r.current.Store(&Snapshot{})
	return r
}

// Current returns the latest published snapshot.
func (r *Roster) Current() *Snapshot {
	return r.current.Load()
}

// Reload rebuilds the roster from the loader. On failure the previous
// snapshot stays current.
func (r *Roster) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	loaded, err := r.loader.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}

	identities := make([]models.Identity, len(loaded))
	for i, id := range loaded {
		emb := make([]float32, len(id.Embedding))
		copy(emb, id.Embedding)
		id.Embedding = emb
		identities[i] = id
	}

	r.version++
	snap := &Snapshot{version: r.version, identities: identities}
	r.current.Store(snap)

	observability.RosterSize.Set(float64(len(identities)))
	observability.RosterVersion.Set(float64(snap.version))
	slog.Info("roster reloaded", "identities", len(identities), "version", snap.version)
	return nil
}
