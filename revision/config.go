package revision

import (
	"revtrail/validation"
)

// Config 采集与存储的全局配置（已解析的值，不负责加载）
type Config struct {
	// AdditionalFields 变更时额外从主体属性复制到修订上的字段
	AdditionalFields []string `mapstructure:"additional_fields"`
	// DefaultModel 修订未记录 user_type 时用于查找操作者的类型
	DefaultModel string `mapstructure:"default_model"`
	// DefaultConnection 修订表所在的连接名
	DefaultConnection string `mapstructure:"default_connection"`

	CleanupEnabled bool `mapstructure:"cleanup_enabled"`
	// HistoryLimit 每个主体的修订上限，0 表示不限制
	HistoryLimit int `mapstructure:"history_limit" validate:"gte=0"`

	// Table 修订表名
	Table string `mapstructure:"table" validate:"required,identifier"`

	// StrictAudit 为 true 时采集失败会返回给调用方；默认只记录日志
	StrictAudit bool `mapstructure:"strict_audit"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		DefaultModel:      "user",
		DefaultConnection: "default",
		Table:             "revisions",
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	return validation.Struct(c)
}

// Retention 全局保留策略
func (c Config) Retention() Retention {
	return Retention{Limit: c.HistoryLimit, Cleanup: c.CleanupEnabled}
}
