package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/silo/pkg/repository"
)

// ConfigFileName is the repository file looked up by FindConfig.
const ConfigFileName = "silo.yaml"

// FileConfig is the YAML description of one repository.
//
//	uri: dir://./data?format=yaml
//	collection: users
//	id: email
//	descriptive_name: user
//	timestamp_on_create: [createdAt, meta.updatedAt]
//	timestamp_on_update: [meta.updatedAt]
type FileConfig struct {
	URI               string   `yaml:"uri"`
	Collection        string   `yaml:"collection"`
	ID                string   `yaml:"id,omitempty"`
	DescriptiveName   string   `yaml:"descriptive_name,omitempty"`
	TimestampOnCreate []string `yaml:"timestamp_on_create,omitempty"`
	TimestampOnUpdate []string `yaml:"timestamp_on_update,omitempty"`
	ReadOnly          bool     `yaml:"read_only,omitempty"`
}

// LoadConfig reads a repository file. A relative dir:// or sqlite:// path
// in uri is resolved against the directory holding the file.
func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Collection == "" {
		return cfg, fmt.Errorf("%s: collection is required", path)
	}
	if cfg.URI == "" {
		cfg.URI = "memory://"
	}
	cfg.URI = resolveURI(cfg.URI, filepath.Dir(path))
	return cfg, nil
}

func resolveURI(uri, base string) string {
	for _, scheme := range []string{"dir://", "sqlite://"} {
		rest, ok := strings.CutPrefix(uri, scheme)
		if !ok || rest == "" {
			continue
		}
		path, query, hasQuery := strings.Cut(rest, "?")
		if filepath.IsAbs(path) {
			return uri
		}
		resolved := scheme + filepath.Join(base, path)
		if hasQuery {
			resolved += "?" + query
		}
		return resolved
	}
	return uri
}

// Repository converts the file into a repository.Config.
func (c FileConfig) Repository() repository.Config {
	return repository.Config{
		Collection:        c.Collection,
		ID:                c.ID,
		DescriptiveName:   c.DescriptiveName,
		TimestampOnCreate: toAny(c.TimestampOnCreate),
		TimestampOnUpdate: toAny(c.TimestampOnUpdate),
	}
}

func toAny(paths []string) []any {
	if len(paths) == 0 {
		return nil
	}
	out := make([]any, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out
}

// FindConfig looks upwards from startDir for a silo.yaml file and returns
// its absolute path.
func FindConfig(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s not found", ConfigFileName)
}
