package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	URL            string `yaml:"url"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type LockConfig struct {
	Table     string `yaml:"table"`
	KeyColumn string `yaml:"key_column,omitempty"`
	Key       string `yaml:"key"`
}

// FileConfig is the content of txwrap.yaml. Wrapper holds the same snake_case
// keys TransactionWrapper accepts and is parsed with txwrap.ParseConfig.
type FileConfig struct {
	Name       string           `yaml:"name,omitempty"`
	Connection ConnectionConfig `yaml:"connection"`
	Wrapper    map[string]any   `yaml:"wrapper"`
	Lock       *LockConfig      `yaml:"lock_target,omitempty"`
	Timeout    string           `yaml:"timeout,omitempty"`
}

const ConfigFileName = "txwrap.yaml"

// Load reads path, or path/txwrap.yaml when path is a directory.
func Load(path string) (*FileConfig, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ConfigFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// WrapperConfig merges overrides onto the wrapper section, parses the result
// with kind names resolved through registry, and validates it for owner.
// Overriding either requires_new alias replaces both aliases from the file.
// A nil FileConfig parses overrides alone.
func (c *FileConfig) WrapperConfig(owner string, registry txwrap.KindRegistry, overrides map[string]any) (txwrap.Config, error) {
	args := make(map[string]any)
	if c != nil {
		for k, v := range c.Wrapper {
			args[k] = v
		}
	}

	_, requiresNew := overrides[txwrap.KeyRequiresNew]
	_, forceNew := overrides[txwrap.KeyForceNew]
	if requiresNew || forceNew {
		delete(args, txwrap.KeyRequiresNew)
		delete(args, txwrap.KeyForceNew)
	}
	for k, v := range overrides {
		args[k] = v
	}

	cfg, err := txwrap.ParseConfig(owner, args, registry)
	if err != nil {
		return txwrap.Config{}, err
	}
	if err := cfg.Validate(owner); err != nil {
		return txwrap.Config{}, err
	}
	return cfg, nil
}
