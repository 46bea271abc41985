package prompt

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/spf13/viper"

	"bistrobooks/internal/domain"
)

type storeKey struct {
	Modality domain.Modality
	Task     string
}

type snapshot struct {
	templates map[storeKey]*Template
}

// Store holds the prompt templates shared by all concurrent requests.
// Reads go through an atomic snapshot pointer and never block; Reload
// builds and validates a complete replacement set before swapping it in,
// so readers cannot observe a partially updated store.
type Store struct {
	filePath string
	reloadMu sync.Mutex
	snap     atomic.Pointer[snapshot]
}

// NewStore builds a store from the built-in templates, overlaid with the
// optional template file. Any invalid template fails construction.
func NewStore(filePath string) (*Store, error) {
	s := &Store{filePath: filePath}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the template registered for (modality, task). The returned
// template is shared and must not be mutated.
func (s *Store) Get(modality domain.Modality, task string) (*Template, error) {
	snap := s.snap.Load()
	t, ok := snap.templates[storeKey{Modality: modality, Task: task}]
	if !ok {
		return nil, fmt.Errorf("promptStore.Get: %s/%s: %w", modality, task, domain.ErrTemplateNotFound)
	}
	return t, nil
}

// Count reports how many templates the active snapshot holds.
func (s *Store) Count() int {
	return len(s.snap.Load().templates)
}

// Reload rebuilds the snapshot from defaults plus the template file and
// swaps it in atomically. Concurrent reloads are serialized; a failed
// reload leaves the previous snapshot in place.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	templates := defaultTemplates()
	fileStart := len(templates)
	if s.filePath != "" {
		overrides, err := loadTemplateFile(s.filePath)
		if err != nil {
			return fmt.Errorf("promptStore.Reload: %w", err)
		}
		templates = append(templates, overrides...)
	}

	next := &snapshot{templates: make(map[storeKey]*Template, len(templates))}
	seenFile := make(map[storeKey]string)
	for i := range templates {
		t := templates[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("promptStore.Reload: %w", err)
		}
		k := storeKey{Modality: t.Modality, Task: t.Task}
		// File entries override built-ins; two file entries on the same key
		// is a configuration bug.
		if i >= fileStart {
			if prev, dup := seenFile[k]; dup {
				return fmt.Errorf("promptStore.Reload: templates %s and %s both target %s/%s", prev, t.Name, t.Modality, t.Task)
			}
			seenFile[k] = t.Name
		}
		next.templates[k] = &t
	}

	s.snap.Store(next)
	log.Printf("promptStore.Reload: %d templates active", len(next.templates))
	return nil
}

// loadTemplateFile reads template overrides from a JSON or YAML file with a
// top-level "templates" list.
func loadTemplateFile(path string) ([]Template, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading template file %s: %w", path, err)
	}
	var out []Template
	if err := v.UnmarshalKey("templates", &out); err != nil {
		return nil, fmt.Errorf("decoding template file %s: %w", path, err)
	}
	return out, nil
}
