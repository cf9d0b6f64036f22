package stores

import (
	"fmt"
	"os"
	"time"

	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type registryFile struct {
	Stores []storeEntry `yaml:"stores"`
}

type storeEntry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	TableSuffix string `yaml:"table_suffix"`
	Timezone    string `yaml:"timezone"`
}

// LoadRegistry reads store definitions from a YAML file. An empty path yields
// the default registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stores: read %s: %w", path, err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes YAML store definitions.
func ParseRegistry(raw []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("stores: decode yaml: %w", err)
	}
	defs := make([]StoreContext, 0, len(file.Stores))
	for _, entry := range file.Stores {
		tz := entry.Timezone
		if tz == "" {
			tz = DefaultTimezone
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("stores: timezone for %s: %w", entry.Code, err)
		}
		defs = append(defs, StoreContext{
			Code:        entry.Code,
			Name:        entry.Name,
			TableSuffix: entry.TableSuffix,
			Location:    loc,
		})
	}
	return NewRegistry(defs...)
}
