package managed

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
)

// ProfilingSettings selects which counter groups ReportProfileStats
// logs.
type ProfilingSettings struct {
	Enabled     bool `yaml:"enabled"`
	Allocations bool `yaml:"allocations"`
	Moves       bool `yaml:"moves"`
	Contexts    bool `yaml:"contexts"`
}

// Settings is the process-scoped configuration snapshot a System is
// built from. ConfigData is inline runtime configuration, or a file
// path when ConfigIsFile is set.
type Settings struct {
	DomainName   string            `yaml:"domain_name"`
	ConfigIsFile bool              `yaml:"config_is_file"`
	ConfigData   string            `yaml:"config_data"`
	Profiling    ProfilingSettings `yaml:"profiling"`

	// Allocator overrides are installed into the engine at
	// construction and immutable afterwards. Not serialized.
	Allocator *engine.AllocatorVTable `yaml:"-"`
}

// LoadSettings reads a YAML settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read settings "+path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.ParseFailed("settings "+path, err)
	}
	return &s, nil
}
