// Package config handles configuration loading for carp-registry.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CARP_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  read_timeout: "30s"
//	  write_timeout: "60s"
//	  shutdown_timeout: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/carp/registry.db"
//
// Package storage:
//
//	storage:
//	  dir: "/var/lib/carp/packages"
//
// Authentication (exactly one of the two must be set):
//
//	auth:
//	  jwt_secret: "${CARP_JWT_SECRET}"  # Real token verification
//	  offline_mode: false               # Fixed dev identities, local only
//
// Limits:
//
//	limits:
//	  max_upload_bytes: 52428800
//	  requests_per_sec: 50
//	  burst: 100
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/carp/registry.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
