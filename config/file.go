package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type decoder interface {
	Decode(v any) error
}

type decoderFunc func(r io.Reader) decoder

func tomlDecoder(r io.Reader) decoder {
	return toml.NewDecoder(r).DisallowUnknownFields()
}

func yamlDecoder(r io.Reader) decoder {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	return d
}

func codecFor(path string) (decoderFunc, func(any) ([]byte, error), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return tomlDecoder, toml.Marshal, nil
	case ".yaml", ".yml":
		return yamlDecoder, yaml.Marshal, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// Load reads and validates the file at path over Default.
func Load(path string) (*Config, error) {
	dec, _, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decode(data, dec, path)
}

// Parse decodes data in the named format ("toml" or "yaml") over Default.
func Parse(data []byte, format string) (*Config, error) {
	dec, _, err := codecFor("." + format)
	if err != nil {
		return nil, err
	}
	return decode(data, dec, format)
}

func decode(data []byte, dec decoderFunc, name string) (*Config, error) {
	c := Default()
	// An empty YAML document decodes to io.EOF.
	if len(bytes.TrimSpace(data)) > 0 {
		if err := dec(bytes.NewReader(data)).Decode(c); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

// Save writes c to path in the format named by its extension.
func Save(path string, c *Config) error {
	_, enc, err := codecFor(path)
	if err != nil {
		return err
	}
	data, err := enc(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // config is not secret
}
