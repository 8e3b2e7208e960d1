package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FilePermissions keeps the cookie file private to the user.
const FilePermissions = 0600

// State is what survives between runs for one endpoint.
type State struct {
	Cookies   []string  `json:"cookies"`
	Path      string    `json:"path,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type file struct {
	Hosts map[string]State `json:"hosts"`
}

// Manager loads and saves the cookie file. States are keyed by the
// endpoint host:port.
type Manager struct {
	path  string
	hosts map[string]State
}

// NewManager creates a manager for the cookie file at path.
func NewManager(path string) *Manager {
	return &Manager{
		path:  path,
		hosts: make(map[string]State),
	}
}

// Path returns the cookie file location.
func (m *Manager) Path() string { return m.path }

// Load reads the cookie file. A missing file leaves the manager empty.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.hosts = make(map[string]State)
			return nil
		}
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}
	if f.Hosts == nil {
		f.Hosts = make(map[string]State)
	}
	m.hosts = f.Hosts
	return nil
}

// Save writes the cookie file, creating its directory when needed.
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	data, err := json.MarshalIndent(file{Hosts: m.hosts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookie file: %w", err)
	}

	if err := os.WriteFile(m.path, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	return nil
}

// Get returns the stored state for host.
func (m *Manager) Get(host string) (State, bool) {
	s, ok := m.hosts[host]
	return s, ok
}

// Put stores the state for host. An empty cookie set with no path removes
// the entry.
func (m *Manager) Put(host string, state State) {
	if len(state.Cookies) == 0 && state.Path == "" {
		delete(m.hosts, host)
		return
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	m.hosts[host] = state
}

// Hosts lists the hosts with stored state, sorted.
func (m *Manager) Hosts() []string {
	hosts := make([]string, 0, len(m.hosts))
	for h := range m.hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
