// Package alias maps device identifiers to human display names and persists
// the mapping outside the process.
package alias

import (
	"context"
	"fmt"
	"sync"

	"github.com/autopeer-io/stepguard/internal/monitor/core"
	"github.com/autopeer-io/stepguard/internal/monitor/core/model"
	"github.com/autopeer-io/stepguard/pkg/log"
)

var _ core.NameStore = (*Store)(nil)

// Backend loads and saves the whole alias document. A missing document loads
// as an empty map.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, names map[string]string) error
}

// Store is an in-memory alias table backed by a Backend. Every change is
// written through to the backend.
type Store struct {
	mu    sync.RWMutex
	names map[string]string

	// saveMu orders backend writes and reloads so the document always holds
	// the latest snapshot.
	saveMu sync.Mutex

	backend  Backend
	onReload []func(map[string]string)
	logger   log.Logger
}

// NewStore creates a Store and loads the current document from backend.
func NewStore(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{
		names:   make(map[string]string),
		backend: backend,
		logger:  log.WithName("alias"),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ResolveName returns the display name of id.
func (s *Store) ResolveName(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.names[model.NormalizeID(id)]
	return name, ok
}

// SetName stores name for id and persists the document. An empty name
// removes the alias. The in-memory table is updated even when persisting
// fails, so the next successful write catches the backend up.
func (s *Store) SetName(ctx context.Context, id, name string) error {
	id = model.NormalizeID(id)

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if name == "" {
		delete(s.names, id)
	} else {
		s.names[id] = name
	}
	snapshot := copyNames(s.names)
	s.mu.Unlock()

	if err := s.backend.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("persist alias of %s: %w", id, err)
	}
	return nil
}

// Names returns a copy of every alias.
func (s *Store) Names() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNames(s.names)
}

// OnReload registers fn to receive the full table after each Reload.
func (s *Store) OnReload(fn func(map[string]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload replaces the table with the backend document and notifies the
// OnReload callbacks. Writes wait until the callbacks return.
func (s *Store) Reload(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.load(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	names := copyNames(s.names)
	callbacks := s.onReload
	s.mu.RUnlock()

	s.logger.Info("Reloaded device names", "count", len(names))
	for _, fn := range callbacks {
		fn(copyNames(names))
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load device names: %w", err)
	}

	names := make(map[string]string, len(raw))
	for id, name := range raw {
		if id = model.NormalizeID(id); id != "" && name != "" {
			names[id] = name
		}
	}

	s.mu.Lock()
	s.names = names
	s.mu.Unlock()
	return nil
}

func copyNames(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
