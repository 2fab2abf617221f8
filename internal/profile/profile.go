// Package profile loads mount-profile files: a named list of NFS/MOUNT
// targets with internal/client.Config overrides, a lightweight analogue of
// the teacher's YAML-configured daemon config, used by cmd/nfsmount so a
// caller can select "--target prod-nas" instead of repeating every flag.
package profile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/nfsmount/internal/client"
)

// Target is one named entry in a profile file.
type Target struct {
	Name      string   `yaml:"name"`
	Network   string   `yaml:"network"`
	Addresses []string `yaml:"addresses"`
	Program   uint32   `yaml:"program"`
	Version   uint32   `yaml:"version"`
	MinVers   uint32   `yaml:"min_vers"`
	MaxVers   uint32   `yaml:"max_vers"`
	Soft      bool     `yaml:"soft"`
	Squishy   bool     `yaml:"squishy"`
	Timeo     string   `yaml:"timeo"`
}

// File is the top-level shape of a mount-profile YAML file.
type File struct {
	Targets []Target `yaml:"targets"`
}

// Load reads and parses a mount-profile file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("profile: parse %s: %w", path, err)
	}
	return &f, nil
}

// Find returns the named target, or an error if no target has that name.
func (f *File) Find(name string) (*Target, error) {
	for i := range f.Targets {
		if f.Targets[i].Name == name {
			return &f.Targets[i], nil
		}
	}
	return nil, fmt.Errorf("profile: no target named %q", name)
}

// ToConfig builds an internal/client.Config from the target, layering its
// overrides onto client.DefaultConfig().
func (t *Target) ToConfig() (client.Config, error) {
	cfg := client.DefaultConfig()

	if t.Program != 0 {
		cfg.Program = t.Program
	}
	if t.Version != 0 {
		cfg.Version = t.Version
	}
	if t.MinVers != 0 {
		cfg.MinVers = t.MinVers
	}
	if t.MaxVers != 0 {
		cfg.MaxVers = t.MaxVers
	}
	cfg.Soft = t.Soft
	cfg.Squishy = t.Squishy

	if t.Timeo != "" {
		d, err := time.ParseDuration(t.Timeo)
		if err != nil {
			return cfg, fmt.Errorf("profile: target %s: invalid timeo %q: %w", t.Name, t.Timeo, err)
		}
		cfg.Timeo = d
	}

	network := t.Network
	if network == "" {
		network = "tcp"
	}
	cfg.Locations = nil
	for _, addr := range t.Addresses {
		cfg.Locations = append(cfg.Locations, client.Location{Network: network, Addr: addr})
	}

	return cfg, nil
}
