// Package rsyncdconfig loads the daemon's module table from a TOML file,
// the configuration format the teacher's own rsyncd binary expects
// (module name, filesystem path, ACL rules, writability).
package rsyncdconfig

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Module is one `[[module]]` table: a named export of a filesystem
// subtree, optionally access-controlled and read-only.
type Module struct {
	Name     string   `toml:"name"`
	Path     string   `toml:"path"`
	ACL      []string `toml:"acl"`
	Writable bool     `toml:"writable"`
}

// Config is the top-level daemon configuration document.
type Config struct {
	Modules []Module `toml:"module"`
}

// Load reads and parses a daemon config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a daemon config document from r, validating every
// module's required fields and rejecting duplicate module names.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("rsyncdconfig: parsing config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Modules))
	for _, mod := range cfg.Modules {
		if mod.Name == "" {
			return Config{}, fmt.Errorf("rsyncdconfig: module has no name")
		}
		if mod.Path == "" {
			return Config{}, fmt.Errorf("rsyncdconfig: module %q has empty path", mod.Name)
		}
		if seen[mod.Name] {
			return Config{}, fmt.Errorf("rsyncdconfig: duplicate module name %q", mod.Name)
		}
		seen[mod.Name] = true
	}
	return cfg, nil
}
