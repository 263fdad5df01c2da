package command

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/batalabs/convo/internal/domain"
)

// Library is the on-disk YAML form of a command set.
type Library struct {
	Commands []domain.CommandDefinition `yaml:"commands"`
}

// ParseLibrary decodes a YAML command library.
func ParseLibrary(data []byte) ([]domain.CommandDefinition, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse command library: %w", err)
	}
	return lib.Commands, nil
}

// LoadFile reads a YAML command library. A missing file is an empty library.
func LoadFile(path string) ([]domain.CommandDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read command library: %w", err)
	}
	return ParseLibrary(data)
}

// SaveFile writes defs as a YAML command library, replacing the file
// atomically via rename.
func SaveFile(path string, defs []domain.CommandDefinition) error {
	data, err := yaml.Marshal(Library{Commands: defs})
	if err != nil {
		return fmt.Errorf("marshal command library: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".commands-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write command library: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
