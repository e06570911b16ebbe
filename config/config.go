// Package config 加载 revtrail 命令行使用的配置
//
// 配置来源按优先级：环境变量（REVTRAIL_ 前缀，层级以 _ 连接）> YAML 文件 > 默认值。
// 核心包只接收解析后的 revision.Config 与 Policy，不依赖本包。
package config

import (
	"context"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	core "revtrail/data/db"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging/transport/natsjetstream"
	"revtrail/messaging/transport/redisstreams"
	"revtrail/revision"
	"revtrail/revision/sqlrepo"
	"revtrail/validation"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "REVTRAIL"

// Config 完整配置
type Config struct {
	Revision revision.Config          `mapstructure:"revision"`
	Database core.DBConfig            `mapstructure:"database"`
	Log      LogConfig                `mapstructure:"log"`
	Notify   NotifyConfig             `mapstructure:"notify"`
	Policies map[string]PolicyConfig  `mapstructure:"policies"`
	Models   map[string]sqlrepo.Model `mapstructure:"models"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// NotifyConfig 修订通知配置，Driver 为空表示不发布
type NotifyConfig struct {
	Driver string               `mapstructure:"driver" validate:"omitempty,oneof=redis nats"`
	Redis  redisstreams.Config  `mapstructure:"redis"`
	NATS   natsjetstream.Config `mapstructure:"nats"`
}

// PolicyConfig 单个主体类型的策略配置
type PolicyConfig struct {
	Disabled         bool     `mapstructure:"disabled"`
	Include          []string `mapstructure:"include"`
	Exclude          []string `mapstructure:"exclude"`
	TrackCreate      bool     `mapstructure:"track_create"`
	IgnoreSoftDelete bool     `mapstructure:"ignore_soft_delete"`
	TrackForceDelete bool     `mapstructure:"track_force_delete"`

	// HistoryLimit 非 nil 时覆盖全局上限
	HistoryLimit *int `mapstructure:"history_limit" validate:"omitempty,gte=0"`
	Cleanup      bool `mapstructure:"cleanup"`

	FieldNames map[string]string `mapstructure:"field_names"`
	Formats    map[string]string `mapstructure:"formats"`
	Relations  map[string]string `mapstructure:"relations"`

	NullString    string `mapstructure:"null_string"`
	UnknownString string `mapstructure:"unknown_string"`
}

// Policy 转为 revision.Policy
func (p PolicyConfig) Policy(subjectType string) revision.Policy {
	policy := revision.Policy{
		SubjectType:      subjectType,
		Disabled:         p.Disabled,
		Include:          p.Include,
		Exclude:          p.Exclude,
		TrackCreate:      p.TrackCreate,
		IgnoreSoftDelete: p.IgnoreSoftDelete,
		TrackForceDelete: p.TrackForceDelete,
		FieldNames:       p.FieldNames,
		Formats:          p.Formats,
		Relations:        p.Relations,
		NullString:       p.NullString,
		UnknownString:    p.UnknownString,
	}
	if p.HistoryLimit != nil {
		policy.Retention = &revision.Retention{Limit: *p.HistoryLimit, Cleanup: p.Cleanup}
	}
	return policy
}

// Default 默认配置：本地 sqlite 文件，不发布通知
func Default() Config {
	return Config{
		Revision: revision.DefaultConfig(),
		Database: core.DBConfig{Driver: "sqlite", Database: "revtrail.db"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load 读取配置文件，path 为空时在当前目录查找 revtrail.yaml（找不到则只用默认值与环境变量）
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("revtrail")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	logger := logging.ComponentLogger("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stdErrors.As(err, &notFound) {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "read config")
		}
		logger.Debug(context.Background(), "未找到配置文件，使用默认值与环境变量")
	} else {
		logger.Debug(context.Background(), "已加载配置文件", logging.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults 注册默认值，同时让 AutomaticEnv 能覆盖这些键
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("revision.additional_fields", d.Revision.AdditionalFields)
	v.SetDefault("revision.default_model", d.Revision.DefaultModel)
	v.SetDefault("revision.default_connection", d.Revision.DefaultConnection)
	v.SetDefault("revision.cleanup_enabled", d.Revision.CleanupEnabled)
	v.SetDefault("revision.history_limit", d.Revision.HistoryLimit)
	v.SetDefault("revision.table", d.Revision.Table)
	v.SetDefault("revision.strict_audit", d.Revision.StrictAudit)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.ssl_mode", "")

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("notify.driver", "")
	v.SetDefault("notify.redis.addr", "")
	v.SetDefault("notify.redis.password", "")
	v.SetDefault("notify.redis.max_len", int64(0))
	v.SetDefault("notify.redis.block_timeout", 5*time.Second)
	v.SetDefault("notify.nats.url", "")
	v.SetDefault("notify.nats.stream", "")
	v.SetDefault("notify.nats.max_age", time.Duration(0))
}

// Validate 校验全部配置
func (c *Config) Validate() error {
	if err := c.Revision.Validate(); err != nil {
		return err
	}
	if err := validation.Struct(c.Database); err != nil {
		return err
	}
	if err := validation.Struct(c.Log); err != nil {
		return err
	}
	if err := validation.Struct(c.Notify); err != nil {
		return err
	}
	switch c.Notify.Driver {
	case "redis":
		if c.Notify.Redis.Addr == "" {
			return errors.NewValidationError("notify.redis.addr is required")
		}
	case "nats":
		if c.Notify.NATS.URL == "" {
			return errors.NewValidationError("notify.nats.url is required")
		}
	}
	for name, p := range c.Policies {
		if err := validation.Struct(p); err != nil {
			return errors.WrapError(err, errors.ErrCodeValidation, "invalid policy "+name)
		}
	}
	for name, m := range c.Models {
		if err := validation.Struct(m); err != nil {
			return errors.WrapError(err, errors.ErrCodeValidation, "invalid model "+name)
		}
	}
	return nil
}

// Registry 用全局配置与策略创建注册表
func (c *Config) Registry() (*revision.Registry, error) {
	registry := revision.NewRegistry(c.Revision)
	for name, p := range c.Policies {
		if err := registry.Register(p.Policy(name)); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeValidation, "register policy "+name)
		}
	}
	return registry, nil
}
