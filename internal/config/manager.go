package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "config.toml"

	backupsDirName = "backups"
	logsDirName    = "logs"
)

var ErrInvalid = errors.New("invalid configuration")

func Defaults(baseDir string) models.Config {
	return models.Config{
		MinBackupInterval:   0,
		GhostBackupKeepDays: -1,
		BackupKeepNum:       -1,
		WarnLargeBackupMB:   1024,
		BackupByDefault:     true,
		ContainerPaths:      map[string][]string{},
		InstanceInfoDirPath: baseDir,
		InstanceInfoFormat:  models.StoreFormatJSON,
		BackupDirPath:       filepath.Join(baseDir, backupsDirName),
		LogDirPath:          filepath.Join(baseDir, logsDirName),
	}
}

type ConfigManager struct {
	configPath string
	baseDir    string
	config     *models.Config
	found      bool
}

// NewConfigManager loads and validates the configuration at configPath. A
// missing file is not an error; defaults relative to its directory are used.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	cm := &ConfigManager{
		configPath: absPath,
		baseDir:    filepath.Dir(absPath),
	}

	if err := cm.Load(); err != nil {
		return nil, err
	}

	return cm, nil
}

func (cm *ConfigManager) Load() error {
	cfg := Defaults(cm.baseDir)

	data, err := os.ReadFile(cm.configPath)
	switch {
	case err == nil:
		cm.found = true
		if err := decode(cm.configPath, data, &cfg); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, cm.configPath, err)
		}
	case os.IsNotExist(err):
		cm.found = false
	default:
		return fmt.Errorf("failed to read config: %w", err)
	}

	if cfg.ContainerPaths == nil {
		cfg.ContainerPaths = map[string][]string{}
	}
	cfg.InstanceInfoDirPath = cm.resolve(cfg.InstanceInfoDirPath)
	cfg.BackupDirPath = cm.resolve(cfg.BackupDirPath)
	cfg.LogDirPath = cm.resolve(cfg.LogDirPath)

	if err := Validate(&cfg); err != nil {
		return err
	}
	if err := cm.prepareDirectories(&cfg); err != nil {
		return err
	}

	cm.config = &cfg
	return nil
}

// GetConfig returns a copy so callers cannot mutate the loaded configuration.
func (cm *ConfigManager) GetConfig() models.Config {
	cfg := *cm.config
	cfg.ContainerPaths = make(map[string][]string, len(cm.config.ContainerPaths))
	for id, paths := range cm.config.ContainerPaths {
		cfg.ContainerPaths[id] = append([]string(nil), paths...)
	}
	return cfg
}

func (cm *ConfigManager) Path() string {
	return cm.configPath
}

func (cm *ConfigManager) Found() bool {
	return cm.found
}

func (cm *ConfigManager) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cm.baseDir, path)
}

// default directories are created on first use; configured ones must exist
func (cm *ConfigManager) prepareDirectories(cfg *models.Config) error {
	defaults := Defaults(cm.baseDir)
	dirs := []struct {
		key, path, fallback string
	}{
		{"instance_info_dir_path", cfg.InstanceInfoDirPath, defaults.InstanceInfoDirPath},
		{"backup_dir_path", cfg.BackupDirPath, defaults.BackupDirPath},
		{"log_dir_path", cfg.LogDirPath, defaults.LogDirPath},
	}

	for _, d := range dirs {
		if d.path == d.fallback {
			if err := os.MkdirAll(d.path, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", d.key, err)
			}
		}
		if _, err := utils.ValidateDirectory(d.path); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, d.key, err)
		}
	}

	return nil
}

func decode(path string, data []byte, cfg *models.Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(data, cfg)
	default:
		return decodeTOML(data, cfg)
	}
}

func decodeTOML(data []byte, cfg *models.Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// blank yaml values fall back to defaults instead of zeroing the field
func decodeYAML(data []byte, cfg *models.Config) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	for k, v := range raw {
		if v == nil {
			delete(raw, k)
		}
	}

	cleaned, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(cleaned))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
