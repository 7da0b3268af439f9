package config

import (
	"sync"

	"github.com/playbookd/sourcekit/internal/models"
)

// ConnectorStore holds the current connector set behind a lock so the
// file watcher can swap it while requests read it.
type ConnectorStore struct {
	mu         sync.RWMutex
	byName     map[string]models.Connector
	connectors []models.Connector
}

func NewConnectorStore(connectors []models.Connector) *ConnectorStore {
	s := &ConnectorStore{}
	s.Replace(connectors)
	return s
}

// Replace swaps the entire connector set. Called on startup and by the
// file watcher after a successful reload.
func (s *ConnectorStore) Replace(connectors []models.Connector) {
	byName := make(map[string]models.Connector, len(connectors))
	for _, c := range connectors {
		byName[c.Name] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName = byName
	s.connectors = append([]models.Connector(nil), connectors...)
}

// Get returns the connector with the given name.
func (s *ConnectorStore) Get(name string) (models.Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	return c, ok
}

// List returns a copy of the current connector set.
func (s *ConnectorStore) List() []models.Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Connector(nil), s.connectors...)
}
