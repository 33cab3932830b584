package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config represents the optional shuttle configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults" yaml:"defaults"`

	// path is where the config was read from; empty when none was found.
	path string
}

// DefaultsConfig holds persistent flag defaults. A nil field means the key
// was absent and the built-in default applies.
type DefaultsConfig struct {
	Workers   *int    `toml:"workers" yaml:"workers"`
	Verify    *string `toml:"verify" yaml:"verify"`
	Reflink   *string `toml:"reflink" yaml:"reflink"`
	Sparse    *string `toml:"sparse" yaml:"sparse"`
	ChunkSize *string `toml:"chunk_size" yaml:"chunk_size"`
	BWLimit   *string `toml:"bwlimit" yaml:"bwlimit"`
	Resume    *bool   `toml:"resume" yaml:"resume"`
	Preserve  *bool   `toml:"preserve" yaml:"preserve"`
	Hash      *string `toml:"hash" yaml:"hash"`
}

// Source returns the file the config was loaded from, or "".
func (c Config) Source() string { return c.path }

// Dir returns the shuttle config directory under $XDG_CONFIG_HOME, falling
// back to ~/.config.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "shuttle")
}

// Path returns the config file that Load would read: config.toml, or
// config.yaml when only that exists.
func Path() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	tomlPath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	for _, name := range []string{"config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return tomlPath
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := decodeFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile reads an explicitly named config file. A leading ~ is expanded.
// Unlike Load, a missing file is an error.
func LoadFile(path string) (Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("expand config path %q: %w", path, err)
	}
	return decodeFile(expanded)
}

func decodeFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		err = decodeTOML(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
