// ABOUTME: Store interface and data types for carp-registry persistence
// ABOUTME: Defines User, APIKey, Agent, AgentVersion and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateVersion is returned when publishing a version that already exists
var ErrDuplicateVersion = errors.New("version already exists")

// User is a registry account. Rows are reconciled from upstream signed-token
// identities and referenced by API keys and agents.
type User struct {
	ID        string
	Email     string
	Handle    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey is the stored record of an issued API key. Only the SHA-256 hash of
// the key is persisted; the raw key is shown once at creation and never again.
type APIKey struct {
	ID         string
	UserID     string
	Name       string
	Prefix     string // first 12 characters, for display ("carp_xxxxxxx")
	KeyHash    string
	Scopes     []string
	IsActive   bool
	IsValid    bool // derived on lookup: active and not expired
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Agent is a published agent package.
type Agent struct {
	ID             string
	UserID         string
	Name           string
	Description    string
	Author         string
	CurrentVersion string
	Tags           []string
	License        string
	Homepage       string
	Repository     string
	Readme         string
	DownloadCount  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AgentVersion is a single published version of an agent with its package
// file metadata.
type AgentVersion struct {
	ID        string
	AgentID   string
	Version   string
	Checksum  string // SHA-256 hex of the package file
	SizeBytes int64
	FileName  string
	FilePath  string // relative to the storage root
	CreatedAt time.Time
}

// SearchParams filters and orders an agent search.
type SearchParams struct {
	Query   string
	Tags    []string
	Author  string
	Sort    string // "relevance", "downloads", "created_at", "updated_at"
	Page    int    // 1-based
	PerPage int
}

// SearchResult is a page of agents plus the total match count.
type SearchResult struct {
	Agents []*Agent
	Total  int
}

// Store defines the persistence operations consumed by the auth subsystem
// and the registry handlers.
type Store interface {
	// API keys
	CreateAPIKey(ctx context.Context, key *APIKey) error
	LookupAPIKey(ctx context.Context, hash string) (*APIKey, error)
	TouchAPIKeyLastUsed(ctx context.Context, hash string) error
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)
	DeleteAPIKey(ctx context.Context, id, userID string) error

	// Users
	UpsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	// Agents
	UpsertAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, name string) (*Agent, error)
	SearchAgents(ctx context.Context, params SearchParams) (*SearchResult, error)
	LatestAgents(ctx context.Context, limit int) ([]*Agent, error)
	TrendingAgents(ctx context.Context, since time.Time, limit int) ([]*Agent, error)

	// Versions and downloads
	PublishVersion(ctx context.Context, v *AgentVersion) error
	GetVersion(ctx context.Context, name, version string) (*AgentVersion, error)
	RecordDownload(ctx context.Context, name, version, userAgent string) error

	// Close releases any resources held by the store
	Close() error
}
