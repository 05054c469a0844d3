package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/wgcore"
)

// config is the YAML file read with -config.
type config struct {
	Name     string   `yaml:"name"`
	Backends []string `yaml:"backends"`

	// Device opens a device on the first adapter and creates the
	// resources below on it.
	Device   bool `yaml:"device"`
	Buffers  int  `yaml:"buffers"`
	Textures int  `yaml:"textures"`
	Samplers int  `yaml:"samplers"`
	// Invalid registers buffer identifiers bound to creation errors.
	Invalid int `yaml:"invalid"`
}

func defaultConfig() config {
	return config{
		Name:     "wgreport",
		Backends: []string{"empty"},
		Device:   true,
		Buffers:  2,
		Textures: 1,
		Samplers: 1,
	}
}

func loadConfig(path string) (config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if c.Buffers < 0 || c.Textures < 0 || c.Samplers < 0 || c.Invalid < 0 {
		return c, fmt.Errorf("config %s: resource counts must not be negative", path)
	}
	return c, nil
}

// backends maps the configured names onto compiled-in backends. Names
// match case-insensitively.
func (c *config) backends() ([]gputypes.Backend, error) {
	var out []gputypes.Backend
	for _, name := range c.Backends {
		b, ok := lookupBackend(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", wgcore.ErrUnsupportedBackend, name)
		}
		out = append(out, b)
	}
	return out, nil
}

func lookupBackend(name string) (gputypes.Backend, bool) {
	for _, b := range wgcore.CompiledBackends() {
		if strings.EqualFold(b.String(), name) {
			return b, true
		}
	}
	return 0, false
}
