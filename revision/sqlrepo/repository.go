// Package sqlrepo 基于数据库表的模型仓储
//
// 每个主体类型映射到一张表：主键列、显示名称列以及关联名 → 关联类型。
// CLI 用它在任意 SQL 数据库上渲染修订历史。
package sqlrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
	sqlbuilder "revtrail/data/db/sql"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/validation"
)

// Model 一个主体类型的表映射
type Model struct {
	Table string `mapstructure:"table" validate:"required,identifier"`
	// IDColumn 默认 id
	IDColumn string `mapstructure:"id_column" validate:"omitempty,identifier"`
	// NameColumn 显示名称列，为空时以主键作为名称
	NameColumn string `mapstructure:"name_column" validate:"omitempty,identifier"`
	// Relations 关联名 → 关联类型，例如 category → category
	Relations map[string]string `mapstructure:"relations"`
}

func (m Model) idColumn() string {
	if m.IDColumn == "" {
		return "id"
	}
	return m.IDColumn
}

// Entity 按主键查到的一行
type Entity struct {
	Type       string
	ID         string
	Attributes map[string]any

	nameColumn string
}

// IdentifiableName 名称列的值；未配置名称列或值为空时返回主键
func (e *Entity) IdentifiableName() string {
	if e.nameColumn != "" {
		if v, ok := e.Attributes[e.nameColumn]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return e.ID
}

// TableRepository 实现 resolve.ModelRepository，并发安全
type TableRepository struct {
	db      core.IDatabase
	dialect dialect.Dialect
	logger  logging.Logger

	mu     sync.RWMutex
	models map[string]Model
}

// NewTableRepository 创建仓储并注册 models
func NewTableRepository(db core.IDatabase, models map[string]Model) (*TableRepository, error) {
	r := &TableRepository{
		db:      db,
		dialect: dialect.FromDatabase(db),
		logger:  logging.ComponentLogger("revision.sqlrepo"),
		models:  make(map[string]Model, len(models)),
	}
	for subjectType, m := range models {
		if err := r.Register(subjectType, m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册或覆盖一个类型的映射
func (r *TableRepository) Register(subjectType string, m Model) error {
	if subjectType == "" {
		return errors.NewValidationError("model subject type is required")
	}
	if err := validation.Struct(m); err != nil {
		return errors.WrapError(err, errors.ErrCodeValidation, "invalid model "+subjectType)
	}
	r.mu.Lock()
	r.models[subjectType] = m
	r.mu.Unlock()
	return nil
}

// Types 已注册的类型
func (r *TableRepository) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for t := range r.models {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *TableRepository) model(subjectType string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[subjectType]
	return m, ok
}

// FindByID 按主键查找，行不存在时返回 (nil, nil)
func (r *TableRepository) FindByID(ctx context.Context, subjectType, id string) (any, error) {
	m, ok := r.model(subjectType)
	if !ok {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "未注册的模型类型 "+subjectType)
	}

	rows, err := sqlbuilder.New(r.db).Select("*").
		From(m.Table).
		Where(r.dialect.QuoteIdentifier(m.idColumn())+" = ?", id).
		Limit(1).
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabase(err, "find "+subjectType)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.WrapDatabase(err, "find "+subjectType)
		}
		return nil, nil
	}
	attrs, err := scanMap(rows)
	if err != nil {
		return nil, errors.WrapDatabase(err, "scan "+subjectType)
	}

	r.logger.Debug(ctx, "加载关联实体", logging.String("type", subjectType), logging.String("id", id))
	return &Entity{Type: subjectType, ID: id, Attributes: attrs, nameColumn: m.NameColumn}, nil
}

// RelationAccessor 返回关联指向的类型
func (r *TableRepository) RelationAccessor(subjectType, relation string) (string, bool) {
	m, ok := r.model(subjectType)
	if !ok {
		return "", false
	}
	related, ok := m.Relations[relation]
	return related, ok && related != ""
}

// scanMap 把当前行读成 列名 → 值，[]byte 转为 string
func scanMap(rows core.IRows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			out[c] = string(b)
			continue
		}
		out[c] = vals[i]
	}
	return out, nil
}
