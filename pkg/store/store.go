// Package store persists workbench state: connections, sessions, the active
// session pointer, and per-catalog database preferences.
//
// State is an explicit object loaded at construction and saved after each
// mutation by its owner; nothing in this package is ambient.
package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/models"
)

// State is the full persisted workbench state.
type State struct {
	Connections  []models.Connection `yaml:"connections"`
	Sessions     []models.Session    `yaml:"sessions"`
	ActiveHandle string              `yaml:"active_handle,omitempty"`
	// CatalogDatabases remembers the last selected database per catalog.
	CatalogDatabases map[string]string `yaml:"catalog_databases,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{CatalogDatabases: make(map[string]string)}
}

// FindConnection returns the connection with the given ID, or nil.
func (s *State) FindConnection(id string) *models.Connection {
	for i := range s.Connections {
		if s.Connections[i].ID == id {
			return &s.Connections[i]
		}
	}
	return nil
}

// AddConnection registers a new connection and returns it with its assigned ID.
func (s *State) AddConnection(name, gatewayURL, jobManagerURL string) models.Connection {
	conn := models.Connection{
		ID:            uuid.NewString(),
		Name:          name,
		GatewayURL:    gatewayURL,
		JobManagerURL: jobManagerURL,
	}
	s.Connections = append(s.Connections, conn)
	return conn
}

// RemoveConnection deletes a connection. The last remaining connection cannot
// be removed, and neither can one still referenced by a session.
func (s *State) RemoveConnection(id string) error {
	if len(s.Connections) <= 1 {
		return errors.ErrLastConnection
	}
	for _, sess := range s.Sessions {
		if sess.ConnectionID == id {
			return errors.ErrConnectionInUse
		}
	}
	for i := range s.Connections {
		if s.Connections[i].ID == id {
			s.Connections = append(s.Connections[:i], s.Connections[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.CodeNotFound, "connection %s not found", id)
}

// SetCatalogDatabase remembers the last selected database for a catalog.
func (s *State) SetCatalogDatabase(catalog, database string) {
	if s.CatalogDatabases == nil {
		s.CatalogDatabases = make(map[string]string)
	}
	s.CatalogDatabases[catalog] = database
}

// CatalogDatabase returns the last selected database for a catalog.
func (s *State) CatalogDatabase(catalog string) string {
	return s.CatalogDatabases[catalog]
}

// Store provides load/save of the persisted state.
type Store interface {
	Load() (*State, error)
	Save(state *State) error
}

// FileStore persists state as a YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted state. A missing file yields an empty state.
func (f *FileStore) Load() (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "read state file %s", f.path)
	}

	state := NewState()
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "decode state file %s", f.path)
	}
	if state.CatalogDatabases == nil {
		state.CatalogDatabases = make(map[string]string)
	}
	return state, nil
}

// Save writes the state atomically (write to a temp file, then rename).
func (f *FileStore) Save(state *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode state")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "create state dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".workbench-state-*")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "create temp state file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeInternal, "write state")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.CodeInternal, "close state file")
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, errors.CodeInternal, "replace state file %s", f.path)
	}
	return nil
}

// MemoryStore keeps state in memory. It backs tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: NewState()}
}

// Load returns a deep copy of the current state.
func (m *MemoryStore) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state), nil
}

// Save replaces the current state.
func (m *MemoryStore) Save(state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = copyState(state)
	return nil
}

func copyState(s *State) *State {
	out := NewState()
	out.Connections = append([]models.Connection(nil), s.Connections...)
	out.Sessions = append([]models.Session(nil), s.Sessions...)
	out.ActiveHandle = s.ActiveHandle
	for k, v := range s.CatalogDatabases {
		out.CatalogDatabases[k] = v
	}
	return out
}
