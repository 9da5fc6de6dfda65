package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/inferd/internal/models"
	"gopkg.in/yaml.v3"
)

// ParseDescriptor decodes a module descriptor. format is the file extension
// without the dot: "toml", "yaml" or "yml".
func ParseDescriptor(data []byte, format string) (*models.ModuleDescriptor, error) {
	var descriptor models.ModuleDescriptor

	switch strings.ToLower(format) {
	case "toml":
		if err := toml.Unmarshal(data, &descriptor); err != nil {
			return nil, fmt.Errorf("failed to parse TOML descriptor: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &descriptor); err != nil {
			return nil, fmt.Errorf("failed to parse YAML descriptor: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported descriptor format: %s", format)
	}

	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

// LoadDescriptors reads every *.toml, *.yaml and *.yml file in dir.
// A missing directory yields no descriptors. Files that fail to parse are
// logged and skipped so one bad module does not keep the others offline.
func LoadDescriptors(dir string, logger arbor.ILogger) ([]*models.ModuleDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.Warn().Str("dir", dir).Msg("Modules directory not found - no modules loaded")
		return []*models.ModuleDescriptor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read modules directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	descriptors := []*models.ModuleDescriptor{}
	seen := map[string]string{}
	for _, name := range names {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if ext != "toml" && ext != "yaml" && ext != "yml" {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to read module descriptor")
			continue
		}

		descriptor, err := ParseDescriptor(data, ext)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Skipping invalid module descriptor")
			continue
		}

		key := strings.ToLower(descriptor.ID)
		if previous, ok := seen[key]; ok {
			logger.Warn().
				Str("module_id", descriptor.ID).
				Str("file", path).
				Str("previous_file", previous).
				Msg("Duplicate module id - later descriptor ignored")
			continue
		}
		seen[key] = path

		descriptor.SourcePath = path
		descriptors = append(descriptors, descriptor)
	}

	return descriptors, nil
}
