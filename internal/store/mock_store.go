// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors SQLite semantics including derived key validity

package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store for tests. All methods are safe for
// concurrent use. Error fields force failures for specific operations.
type MockStore struct {
	mu sync.Mutex

	users    map[string]*User
	keys     map[string]*APIKey // by hash
	agents   map[string]*Agent  // by name
	versions map[string][]*AgentVersion
	download []string

	LookupKeyErr error
	UpsertErr    error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[string]*User),
		keys:     make(map[string]*APIKey),
		agents:   make(map[string]*Agent),
		versions: make(map[string][]*AgentVersion),
	}
}

func (m *MockStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	key.IsActive = true
	cp := *key
	m.keys[key.KeyHash] = &cp
	return nil
}

func (m *MockStore) LookupAPIKey(ctx context.Context, hash string) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupKeyErr != nil {
		return nil, m.LookupKeyErr
	}
	key, ok := m.keys[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *key
	cp.IsValid = cp.IsActive && (cp.ExpiresAt == nil || cp.ExpiresAt.After(time.Now()))
	return &cp, nil
}

func (m *MockStore) TouchAPIKeyLastUsed(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.keys[hash]; ok {
		now := time.Now().UTC()
		key.LastUsedAt = &now
	}
	return nil
}

func (m *MockStore) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []*APIKey
	for _, key := range m.keys {
		if key.UserID == userID {
			cp := *key
			keys = append(keys, &cp)
		}
	}
	return keys, nil
}

func (m *MockStore) DeleteAPIKey(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, key := range m.keys {
		if key.ID == id && key.UserID == userID {
			delete(m.keys, hash)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MockStore) UpsertUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	existing, ok := m.users[u.ID]
	if ok {
		if u.Email != "" {
			existing.Email = u.Email
		}
		if u.Handle != "" {
			existing.Handle = u.Handle
		}
		existing.UpdatedAt = time.Now().UTC()
		return nil
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	m.users[u.ID] = &cp
	return nil
}

func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockStore) UpsertAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if existing, ok := m.agents[agent.Name]; ok {
		agent.ID = existing.ID
		agent.CreatedAt = existing.CreatedAt
		agent.DownloadCount = existing.DownloadCount
	} else if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	cp := *agent
	m.agents[agent.Name] = &cp
	return nil
}

func (m *MockStore) GetAgent(ctx context.Context, name string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (m *MockStore) SearchAgents(ctx context.Context, params SearchParams) (*SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := &SearchResult{}
	for _, agent := range m.agents {
		if params.Query != "" && !contains(agent.Name, params.Query) &&
			!contains(agent.Description, params.Query) {
			continue
		}
		if params.Author != "" && agent.Author != params.Author {
			continue
		}
		cp := *agent
		result.Agents = append(result.Agents, &cp)
	}
	result.Total = len(result.Agents)
	return result, nil
}

func (m *MockStore) LatestAgents(ctx context.Context, limit int) ([]*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var agents []*Agent
	for _, agent := range m.agents {
		cp := *agent
		agents = append(agents, &cp)
		if len(agents) == limit {
			break
		}
	}
	return agents, nil
}

func (m *MockStore) TrendingAgents(ctx context.Context, since time.Time, limit int) ([]*Agent, error) {
	return m.LatestAgents(ctx, limit)
}

func (m *MockStore) PublishVersion(ctx context.Context, v *AgentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.versions[v.AgentID] {
		if existing.Version == v.Version {
			return ErrDuplicateVersion
		}
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	cp := *v
	m.versions[v.AgentID] = append(m.versions[v.AgentID], &cp)
	for _, agent := range m.agents {
		if agent.ID == v.AgentID {
			agent.CurrentVersion = v.Version
		}
	}
	return nil
}

func (m *MockStore) GetVersion(ctx context.Context, name, version string) (*AgentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[name]
	if !ok {
		return nil, ErrNotFound
	}
	if version == "" || version == "latest" {
		version = agent.CurrentVersion
	}
	for _, v := range m.versions[agent.ID] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) RecordDownload(ctx context.Context, name, version, userAgent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.download = append(m.download, name+"@"+version)
	if agent, ok := m.agents[name]; ok {
		agent.DownloadCount++
	}
	return nil
}

// Downloads returns the recorded download log as name@version strings.
func (m *MockStore) Downloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.download))
	copy(out, m.download)
	return out
}

func (m *MockStore) Close() error { return nil }

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
