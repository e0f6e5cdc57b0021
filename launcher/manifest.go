package launcher

import (
	"fmt"
	"os"

	"github.com/buildkite/interpolate"
	"github.com/buildkite/shellwords"
	"github.com/dlerazeezcore/the-book-platform/env"
	"gopkg.in/yaml.v3"
)

// Manifest is an optional YAML file that overrides the command lines the
// launcher runs, for example:
//
//	env:
//	  AVAILABILITY_BACKEND_URL: http://127.0.0.1:5050
//	gateway:
//	  command: the-book gateway --bind 127.0.0.1:5050
//	web:
//	  command: the-book web --port ${PORT:-8000}
//
// Command strings are interpolated against the launch environment and then
// split with POSIX shell word rules.
type Manifest struct {
	Env     map[string]string `yaml:"env"`
	Gateway ManifestProcess   `yaml:"gateway"`
	Web     ManifestProcess   `yaml:"web"`
}

type ManifestProcess struct {
	Command string `yaml:"command"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Apply merges the manifest into a launcher config: manifest env entries
// become defaults for variables the caller hasn't set, and non-empty
// command strings replace the config's command lines.
func (m *Manifest) Apply(c *Config, environ *env.Environment) error {
	if c.Env == nil {
		c.Env = env.New()
	}
	if environ == nil {
		environ = c.Env
	}

	for k, v := range m.Env {
		environ.SetDefault(k, v)
	}

	ienv := interpolate.NewSliceEnv(environ.ToSlice())

	if m.Gateway.Command != "" {
		argv, err := splitCommand(ienv, m.Gateway.Command)
		if err != nil {
			return fmt.Errorf("gateway command: %w", err)
		}
		c.GatewayCommand = argv
	}

	if m.Web.Command != "" {
		argv, err := splitCommand(ienv, m.Web.Command)
		if err != nil {
			return fmt.Errorf("web command: %w", err)
		}
		c.WebCommand = argv
	}

	return nil
}

func splitCommand(ienv interpolate.Env, command string) ([]string, error) {
	expanded, err := interpolate.Interpolate(ienv, command)
	if err != nil {
		return nil, fmt.Errorf("interpolating %q: %w", command, err)
	}

	argv, err := shellwords.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("splitting %q: %w", expanded, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command %q is empty after interpolation", command)
	}
	return argv, nil
}
