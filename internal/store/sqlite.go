// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/key/agent persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			prefix TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			scopes TEXT NOT NULL DEFAULT '[]',
			is_active INTEGER NOT NULL DEFAULT 1,
			last_used_at TEXT,
			expires_at TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			current_version TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			license TEXT NOT NULL DEFAULT '',
			homepage TEXT NOT NULL DEFAULT '',
			repository TEXT NOT NULL DEFAULT '',
			readme TEXT NOT NULL DEFAULT '',
			download_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agent_versions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL REFERENCES agents(id),
			version TEXT NOT NULL,
			checksum TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(agent_id, version)
		);

		CREATE TABLE IF NOT EXISTS downloads (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			version TEXT NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_downloads_agent ON downloads(agent_name, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// API keys ------------------------------------------------------------------

// CreateAPIKey stores a new API key record. The caller is responsible for
// hashing the key; the raw key never reaches the store.
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, prefix, key_hash, scopes, is_active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		key.ID, key.UserID, key.Name, key.Prefix, key.KeyHash, string(scopes),
		nullTime(key.ExpiresAt), key.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("api key already exists: %w", err)
		}
		return fmt.Errorf("inserting api key: %w", err)
	}
	key.IsActive = true
	return nil
}

// LookupAPIKey resolves a key hash to its record. IsValid is derived from the
// active flag and the expiry timestamp at lookup time; callers must treat an
// invalid record the same as a missing one.
func (s *SQLiteStore) LookupAPIKey(ctx context.Context, hash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, prefix, key_hash, scopes, is_active, last_used_at, expires_at, created_at
		FROM api_keys WHERE key_hash = ?`, hash)

	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}

	key.IsValid = key.IsActive && (key.ExpiresAt == nil || key.ExpiresAt.After(time.Now()))
	return key, nil
}

// TouchAPIKeyLastUsed records when a key was last used for verification.
// The update is idempotent and carries no ordering requirement.
func (s *SQLiteStore) TouchAPIKeyLastUsed(ctx context.Context, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?`,
		time.Now().UTC().Format(time.RFC3339), hash,
	)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}

// ListAPIKeys returns all keys owned by a user, newest first.
func (s *SQLiteStore) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, prefix, key_hash, scopes, is_active, last_used_at, expires_at, created_at
		FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey removes a key, but only when it is owned by the given user.
func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Users ---------------------------------------------------------------------

// UpsertUser creates or updates a user row keyed on ID. Empty email/handle
// values never overwrite existing ones.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, handle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END,
			handle = CASE WHEN excluded.handle != '' THEN excluded.handle ELSE users.handle END,
			updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Handle,
		u.CreatedAt.UTC().Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, handle, created_at, updated_at FROM users WHERE id = ?`, id)

	var u User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Email, &u.Handle, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &u, nil
}

// Agents --------------------------------------------------------------------

// UpsertAgent creates an agent or updates its metadata. The conflict target
// is the unique agent name; ownership checks happen in the handler layer
// before this is called.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	tags, err := json.Marshal(agent.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, user_id, name, description, author, current_version, tags,
			license, homepage, repository, readme, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			author = excluded.author,
			current_version = excluded.current_version,
			tags = excluded.tags,
			license = excluded.license,
			homepage = excluded.homepage,
			repository = excluded.repository,
			readme = excluded.readme,
			updated_at = excluded.updated_at`,
		agent.ID, agent.UserID, agent.Name, agent.Description, agent.Author,
		agent.CurrentVersion, string(tags), agent.License, agent.Homepage,
		agent.Repository, agent.Readme,
		agent.CreatedAt.UTC().Format(time.RFC3339), agent.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting agent: %w", err)
	}
	return nil
}

const agentColumns = `id, user_id, name, description, author, current_version, tags,
	license, homepage, repository, readme, download_count, created_at, updated_at`

// GetAgent retrieves an agent by name.
func (s *SQLiteStore) GetAgent(ctx context.Context, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = ?`, name)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	return agent, nil
}

// SearchAgents runs a filtered, paginated agent search.
func (s *SQLiteStore) SearchAgents(ctx context.Context, params SearchParams) (*SearchResult, error) {
	var where []string
	var args []any

	if params.Query != "" {
		like := "%" + params.Query + "%"
		where = append(where, "(name LIKE ? OR description LIKE ? OR tags LIKE ?)")
		args = append(args, like, like, like)
	}
	if params.Author != "" {
		where = append(where, "author = ?")
		args = append(args, params.Author)
	}
	for _, tag := range params.Tags {
		// Tags are stored as a JSON array of strings, so a quoted match
		// is an exact tag match.
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM agents"+whereClause, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting agents: %w", err)
	}

	order := " ORDER BY download_count DESC, name ASC"
	switch params.Sort {
	case "created_at":
		order = " ORDER BY created_at DESC"
	case "updated_at":
		order = " ORDER BY updated_at DESC"
	case "downloads":
		order = " ORDER BY download_count DESC"
	case "", "relevance":
		if params.Query != "" {
			// Exact name matches first, then by popularity.
			order = " ORDER BY (name = ?) DESC, download_count DESC"
			args = append(args, params.Query)
		}
	}

	page := max(params.Page, 1)
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+agentColumns+" FROM agents"+whereClause+order+" LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("searching agents: %w", err)
	}
	defer rows.Close()

	result := &SearchResult{Total: total}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		result.Agents = append(result.Agents, agent)
	}
	return result, rows.Err()
}

// LatestAgents returns the most recently published agents.
func (s *SQLiteStore) LatestAgents(ctx context.Context, limit int) ([]*Agent, error) {
	return s.queryAgents(ctx,
		"SELECT "+agentColumns+" FROM agents ORDER BY created_at DESC LIMIT ?", limit)
}

// TrendingAgents returns agents ranked by download count since the given time.
func (s *SQLiteStore) TrendingAgents(ctx context.Context, since time.Time, limit int) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixColumns("a", agentColumns)+`
		FROM agents a
		JOIN (
			SELECT agent_name, COUNT(*) AS recent
			FROM downloads WHERE created_at >= ?
			GROUP BY agent_name
		) d ON d.agent_name = a.name
		ORDER BY d.recent DESC LIMIT ?`,
		since.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("querying trending agents: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (s *SQLiteStore) queryAgents(ctx context.Context, query string, args ...any) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()
	return collectAgents(rows)
}

// Versions and downloads ----------------------------------------------------

// PublishVersion records a new agent version. Publishing the same version
// twice returns ErrDuplicateVersion.
func (s *SQLiteStore) PublishVersion(ctx context.Context, v *AgentVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_versions (id, agent_id, version, checksum, size_bytes, file_name, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.AgentID, v.Version, v.Checksum, v.SizeBytes, v.FileName, v.FilePath,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateVersion
		}
		return fmt.Errorf("inserting version: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE agents SET current_version = ? WHERE id = ?`, v.Version, v.AgentID)
	if err != nil {
		return fmt.Errorf("updating current version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version of an agent by name. An empty version or
// "latest" resolves to the agent's current version.
func (s *SQLiteStore) GetVersion(ctx context.Context, name, version string) (*AgentVersion, error) {
	query := `
		SELECT v.id, v.agent_id, v.version, v.checksum, v.size_bytes, v.file_name, v.file_path, v.created_at
		FROM agent_versions v JOIN agents a ON a.id = v.agent_id
		WHERE a.name = ?`
	args := []any{name}

	if version == "" || version == "latest" {
		query += " AND v.version = a.current_version"
	} else {
		query += " AND v.version = ?"
		args = append(args, version)
	}

	var v AgentVersion
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&v.ID, &v.AgentID, &v.Version, &v.Checksum, &v.SizeBytes,
		&v.FileName, &v.FilePath, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting version: %w", err)
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &v, nil
}

// RecordDownload logs a download and bumps the agent's counter.
func (s *SQLiteStore) RecordDownload(ctx context.Context, name, version, userAgent string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (id, agent_name, version, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), name, version, userAgent,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording download: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE agents SET download_count = download_count + 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("bumping download count: %w", err)
	}
	return nil
}

// Scan helpers --------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var scopes, createdAt string
	var lastUsed, expires sql.NullString
	var active int

	err := row.Scan(&key.ID, &key.UserID, &key.Name, &key.Prefix, &key.KeyHash,
		&scopes, &active, &lastUsed, &expires, &createdAt)
	if err != nil {
		return nil, err
	}

	key.IsActive = active != 0
	if err := json.Unmarshal([]byte(scopes), &key.Scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	key.LastUsedAt = parseNullTime(lastUsed)
	key.ExpiresAt = parseNullTime(expires)
	return &key, nil
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var tags, createdAt, updatedAt string

	err := row.Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.Description,
		&agent.Author, &agent.CurrentVersion, &tags, &agent.License,
		&agent.Homepage, &agent.Repository, &agent.Readme,
		&agent.DownloadCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &agent.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	agent.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	agent.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &agent, nil
}

func collectAgents(rows *sql.Rows) ([]*Agent, error) {
	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
