package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devricklin/chat-timeline/internal/biz/usecase"
	"gopkg.in/yaml.v3"
)

// DisplayConfig contains the timeline display settings loaded from YAML
type DisplayConfig struct {
	Days     DayLabelsConfig `yaml:"days"`
	Timezone string          `yaml:"timezone"`
}

// DayLabelsConfig contains the day bucket labels
type DayLabelsConfig struct {
	Today      string `yaml:"today"`
	Yesterday  string `yaml:"yesterday"`
	DateLayout string `yaml:"date_layout"`
}

// LoadDisplayConfig loads display configuration from a YAML file
func LoadDisplayConfig(configPath string) (*DisplayConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/display.yaml",
			"/etc/chat-timeline/display.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "display.yaml"))
		}
	}

	var data []byte
	var loadedPath string

	for _, p := range paths {
		if b, err := os.ReadFile(p); err == nil {
			data = b
			loadedPath = p
			break
		}
	}

	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read %s", configPath)
		}
		fmt.Println("[Config] No display.yaml found, using defaults")
		return DefaultDisplayConfig(), nil
	}

	fmt.Printf("[Config] Loading display settings from: %s\n", loadedPath)

	var config DisplayConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse display.yaml: %w", err)
	}

	config.fillDefaults()
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *DisplayConfig) fillDefaults() {
	defaults := DefaultDisplayConfig()

	if c.Days.Today == "" {
		c.Days.Today = defaults.Days.Today
	}
	if c.Days.Yesterday == "" {
		c.Days.Yesterday = defaults.Days.Yesterday
	}
	if c.Days.DateLayout == "" {
		c.Days.DateLayout = defaults.Days.DateLayout
	}
}

// ToDayLabels converts to usecase day labels
func (c *DisplayConfig) ToDayLabels() usecase.DayLabels {
	return usecase.DayLabels{
		Today:      c.Days.Today,
		Yesterday:  c.Days.Yesterday,
		DateLayout: c.Days.DateLayout,
	}
}

// DefaultDisplayConfig returns the default display configuration
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		Days: DayLabelsConfig{
			Today:      usecase.DefaultDayLabels.Today,
			Yesterday:  usecase.DefaultDayLabels.Yesterday,
			DateLayout: usecase.DefaultDayLabels.DateLayout,
		},
	}
}
