// ABOUTME: Process-wide auth configuration with explicit offline/connected modes
// ABOUTME: Constructed once at startup; the mode is a type-checked precondition

package auth

import "errors"

// DefaultAudience is the audience claim every signed token must carry.
const DefaultAudience = "authenticated"

type mode int

const (
	modeOffline mode = iota
	modeConnected
)

// Config holds the verification material for both credential kinds. It is
// immutable for the process lifetime and passed by injection to every
// verifier; there is no environment lookup at verification time.
type Config struct {
	mode      mode
	jwtSecret []byte
	audience  string
}

// OfflineConfig returns a configuration for running without a configured
// verification secret or store. Verifiers return fixed development
// identities. This mode exists solely for local development; it is selected
// explicitly, never inferred at a call site.
func OfflineConfig() *Config {
	return &Config{mode: modeOffline, audience: DefaultAudience}
}

// ConnectedConfig returns a configuration that performs real verification.
// The secret must be non-empty: an empty secret cannot silently degrade into
// offline mode.
func ConnectedConfig(jwtSecret string) (*Config, error) {
	if jwtSecret == "" {
		return nil, errors.New("auth: connected config requires a signing secret")
	}
	return &Config{
		mode:      modeConnected,
		jwtSecret: []byte(jwtSecret),
		audience:  DefaultAudience,
	}, nil
}

// Offline reports whether verifiers should return development identities.
func (c *Config) Offline() bool {
	return c.mode == modeOffline
}
