// Package config loads the devsim YAML configuration file, the same
// nested-struct-with-tags shape as cmd/agsys-controller/main.go's Config.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the devsim configuration file structure.
type Config struct {
	Device struct {
		HexFiles []string `yaml:"hex_files"`
	} `yaml:"device"`

	// Provision pre-populates the LNS's DevEUI -> NwkKey table so a
	// device's first Join-Request in the run succeeds, per spec §4.J
	// ("a real LNS learns this from a join-server backend; here it's
	// populated directly by the test harness or config").
	Provision []ProvisionEntry `yaml:"provision"`

	Simulation struct {
		VirtualTime bool   `yaml:"virtual_time"`
		Region      string `yaml:"region"`
	} `yaml:"simulation"`

	Network struct {
		NetID    [3]byte `yaml:"-"`
		NetIDHex string  `yaml:"net_id"`
	} `yaml:"network"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Inspect struct {
		ListenAddr string `yaml:"listen_addr"`
		Enabled    bool   `yaml:"enabled"`
	} `yaml:"inspect"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// ProvisionEntry is one device's join-server record: its identity and
// root key, both given as hex strings in the YAML file and decoded into
// fixed-size arrays on Load.
type ProvisionEntry struct {
	DevEUIHex string   `yaml:"dev_eui"`
	NwkKeyHex string   `yaml:"nwk_key"`
	DevEUI    [8]byte  `yaml:"-"`
	NwkKey    [16]byte `yaml:"-"`
}

func (p *ProvisionEntry) decode() error {
	eui, err := hex.DecodeString(p.DevEUIHex)
	if err != nil || len(eui) != 8 {
		return fmt.Errorf("provision: dev_eui %q must be 16 hex characters", p.DevEUIHex)
	}
	copy(p.DevEUI[:], eui)

	key, err := hex.DecodeString(p.NwkKeyHex)
	if err != nil || len(key) != 16 {
		return fmt.Errorf("provision: nwk_key %q must be 32 hex characters", p.NwkKeyHex)
	}
	copy(p.NwkKey[:], key)
	return nil
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse file: %w", err)
	}

	if cfg.Network.NetIDHex != "" {
		netID, err := parseNetID(cfg.Network.NetIDHex)
		if err != nil {
			return nil, fmt.Errorf("config: network.net_id: %w", err)
		}
		cfg.Network.NetID = netID
	}

	for i := range cfg.Provision {
		if err := cfg.Provision[i].decode(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	return &cfg, nil
}

// Default returns a Config with the simulator's baseline settings —
// EU868, non-virtual clock, inspect disabled — for callers that run
// without a config file (e.g. TEST_HEXFILES-driven harness runs).
func Default() *Config {
	var cfg Config
	cfg.Simulation.Region = "EU868"
	cfg.Database.Path = "lorasim.db"
	cfg.Inspect.ListenAddr = ":8787"
	cfg.Logging.Level = "info"
	return &cfg
}

func parseNetID(s string) ([3]byte, error) {
	var id [3]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("malformed net id %q: %w", s, err)
	}
	if len(b) != 3 {
		return id, fmt.Errorf("net id %q must be 6 hex characters (3 bytes)", s)
	}
	copy(id[:], b)
	return id, nil
}
