// ABOUTME: Agent package manifest (Carp.toml) parsing and validation
// ABOUTME: Extracts manifest and README from uploaded gzipped tarballs

package registry

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/gzip"
)

// Manifest is the Carp.toml agent package manifest.
type Manifest struct {
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Description  string            `toml:"description"`
	Author       string            `toml:"author"`
	License      string            `toml:"license"`
	Homepage     string            `toml:"homepage"`
	Repository   string            `toml:"repository"`
	Tags         []string          `toml:"tags"`
	Files        []string          `toml:"files"`
	Main         string            `toml:"main"`
	Dependencies map[string]string `toml:"dependencies"`
}

// Validate checks the manifest against the registry's naming and versioning
// rules.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if !validAgentName(m.Name) {
		return fmt.Errorf("agent name can only contain alphanumeric characters, hyphens, and underscores")
	}
	if len(m.Name) > 100 {
		return fmt.Errorf("agent name cannot exceed 100 characters")
	}
	if m.Version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if !validVersion(m.Version) {
		return fmt.Errorf("version must be in semver format (e.g., 1.0.0)")
	}
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("description cannot be empty")
	}
	if len(m.Description) > 1000 {
		return fmt.Errorf("description cannot exceed 1000 characters")
	}
	if strings.TrimSpace(m.Author) == "" {
		return fmt.Errorf("author cannot be empty")
	}
	if len(m.Tags) > 20 {
		return fmt.Errorf("cannot have more than 20 tags")
	}
	for _, tag := range m.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tags cannot be empty")
		}
		if len(tag) > 50 {
			return fmt.Errorf("tags cannot exceed 50 characters")
		}
	}
	return nil
}

func validAgentName(name string) bool {
	for _, c := range name {
		if !isAlphanumeric(c) && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

func validVersion(version string) bool {
	if len(version) > 50 {
		return false
	}
	parts := strings.Split(version, ".")
	if len(parts) == 0 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

func isAlphanumeric(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// manifestFileNames are the accepted manifest names inside a package, in
// lookup order.
var manifestFileNames = []string{"Carp.toml", "carp.toml", "agent.toml"}

// Package is the parsed contents of an uploaded agent package.
type Package struct {
	Manifest *Manifest
	Readme   string
}

// ExtractPackage reads a gzipped tarball and pulls out the manifest and the
// README, if present. The archive is scanned once; files other than the
// manifest and README are ignored here but remain in the stored package.
func ExtractPackage(data []byte) (*Package, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("package is not gzip-compressed: %w", err)
	}
	defer gz.Close()

	var manifestData []byte
	var readme string

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading package archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		switch {
		case isManifestName(name):
			manifestData, err = io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading manifest: %w", err)
			}
		case strings.EqualFold(name, "README.md"):
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading README: %w", err)
			}
			readme = string(data)
		}
	}

	if manifestData == nil {
		return nil, fmt.Errorf("no manifest file found, package must contain Carp.toml")
	}

	var manifest Manifest
	if err := toml.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	return &Package{Manifest: &manifest, Readme: readme}, nil
}

func isManifestName(name string) bool {
	for _, candidate := range manifestFileNames {
		if name == candidate {
			return true
		}
	}
	return false
}
