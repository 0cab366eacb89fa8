package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	StoreFormatJSON   = "json"
	StoreFormatSQLite = "sqlite"
)

// Config is the immutable configuration of a backup pass.
type Config struct {
	MinBackupInterval   int                 `toml:"min_backup_interval" yaml:"min_backup_interval" json:"min_backup_interval" validate:"gte=0"`
	GhostBackupKeepDays int                 `toml:"ghost_backup_keep_days" yaml:"ghost_backup_keep_days" json:"ghost_backup_keep_days" validate:"gte=-1"`
	BackupKeepNum       int                 `toml:"backup_keep_num" yaml:"backup_keep_num" json:"backup_keep_num" validate:"eq=-1|gt=0"`
	WarnLargeBackupMB   int                 `toml:"warn_large_backup_mb" yaml:"warn_large_backup_mb" json:"warn_large_backup_mb" validate:"gte=0"`
	BackupByDefault     bool                `toml:"backup_by_default" yaml:"backup_by_default" json:"backup_by_default"`
	ContainerPaths      map[string][]string `toml:"container_paths" yaml:"container_paths" json:"container_paths" validate:"dive,keys,required,endkeys,min=1,dive,startswith=/"`

	TelegramChatID   ChatID `toml:"telegram_chat_id" yaml:"telegram_chat_id" json:"telegram_chat_id" validate:"required_with=TelegramBotToken"`
	TelegramBotToken string `toml:"telegram_bot_token" yaml:"telegram_bot_token" json:"-" validate:"required_with=TelegramChatID"`

	InstanceInfoDirPath string `toml:"instance_info_dir_path" yaml:"instance_info_dir_path" json:"instance_info_dir_path" validate:"required"`
	InstanceInfoFormat  string `toml:"instance_info_format" yaml:"instance_info_format" json:"instance_info_format" validate:"oneof=json sqlite"`
	BackupDirPath       string `toml:"backup_dir_path" yaml:"backup_dir_path" json:"backup_dir_path" validate:"required"`
	LogDirPath          string `toml:"log_dir_path" yaml:"log_dir_path" json:"log_dir_path" validate:"required"`

	DockerHost    string `toml:"docker_host" yaml:"docker_host" json:"docker_host"`
	DockerTLSCA   string `toml:"docker_tls_ca" yaml:"docker_tls_ca" json:"docker_tls_ca" validate:"required_with=DockerTLSCert DockerTLSKey"`
	DockerTLSCert string `toml:"docker_tls_cert" yaml:"docker_tls_cert" json:"docker_tls_cert" validate:"required_with=DockerTLSCA DockerTLSKey"`
	DockerTLSKey  string `toml:"docker_tls_key" yaml:"docker_tls_key" json:"docker_tls_key" validate:"required_with=DockerTLSCA DockerTLSCert"`
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramChatID != "" && c.TelegramBotToken != ""
}

func (c *Config) CountPruningEnabled() bool {
	return c.BackupKeepNum > 0
}

func (c *Config) GhostPruningEnabled() bool {
	return c.GhostBackupKeepDays >= 0
}

func (c *Config) WarnLargeBackupBytes() int64 {
	return int64(c.WarnLargeBackupMB) * 1024 * 1024
}

// ChatID accepts telegram chat ids written either quoted or as bare integers.
type ChatID string

func (c *ChatID) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		*c = ChatID(val)
	case int64:
		*c = ChatID(fmt.Sprintf("%d", val))
	default:
		return fmt.Errorf("telegram_chat_id expected a string or integer, got %T", v)
	}
	return nil
}

func (c *ChatID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("telegram_chat_id expected a string or integer (line %d)", node.Line)
	}
	*c = ChatID(node.Value)
	return nil
}
