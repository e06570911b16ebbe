package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sqlbuilder "revtrail/data/db/sql"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/revision"
)

const (
	// DefaultTable 修订表默认表名
	DefaultTable = "revisions"

	// insertChunkSize 单条 INSERT 的最大行数，控制占位符数量
	insertChunkSize = 200
)

var revisionColumns = []string{
	"id", "revisionable_type", "revisionable_id", "key", "old_value", "new_value",
	"user_id", "user_type", "ip", "name", "description", "revision_id", "additional_fields",
	"created_at", "updated_at",
}

// SQLStore 基于 data/db 的修订存储
type SQLStore struct {
	db      core.IDatabase
	table   string
	dialect dialect.Dialect
	logger  logging.Logger
}

// Option SQLStore 选项
type Option func(*SQLStore)

// WithTable 指定表名
func WithTable(table string) Option {
	return func(s *SQLStore) {
		if table != "" {
			s.table = table
		}
	}
}

// WithLogger 指定日志
func WithLogger(logger logging.Logger) Option {
	return func(s *SQLStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLStore 创建 SQL 修订存储，表结构由 data/db/migrations 创建
func NewSQLStore(db core.IDatabase, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		table:   DefaultTable,
		dialect: dialect.FromDatabase(db),
		logger:  logging.ComponentLogger("revision.store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) col(name string) string {
	return s.dialect.QuoteIdentifier(name)
}

// subjectCond revisionable_type = ? AND revisionable_id = ?
func (s *SQLStore) subjectCond() string {
	return s.col("revisionable_type") + " = ? AND " + s.col("revisionable_id") + " = ?"
}

// InsertBatch 在一个事务内写入一批修订
func (s *SQLStore) InsertBatch(ctx context.Context, revs []*revision.Revision) error {
	if len(revs) == 0 {
		return nil
	}
	if _, _, err := batchSubject(revs); err != nil {
		return errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}

	err := core.RunInTx(ctx, s.db, func(tx core.ITransaction) error {
		return s.insertTx(ctx, tx, revs)
	})
	if err != nil {
		s.logger.Warn(ctx, "写入修订失败", logging.String("subject", revs[0].SubjectRef()),
			logging.Int("count", len(revs)), logging.Error(err))
		return errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}
	return nil
}

// InsertBatchCapped 上限检查、清理与写入在同一事务内完成
//
// postgres 额外持有以主体为键的事务级 advisory lock，跨进程串行化同一主体的写入。
func (s *SQLStore) InsertBatchCapped(ctx context.Context, revs []*revision.Revision, limit int, cleanup bool) (bool, error) {
	if len(revs) == 0 {
		return false, nil
	}
	subjectType, subjectID, err := batchSubject(revs)
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}

	written := false
	err = core.RunInTx(ctx, s.db, func(tx core.ITransaction) error {
		if s.dialect.Name() == dialect.NamePostgres {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", subjectType+":"+subjectID); err != nil {
				return fmt.Errorf("lock subject: %w", err)
			}
		}

		if limit > 0 {
			count, err := s.count(ctx, tx, subjectType, subjectID)
			if err != nil {
				return err
			}
			if count >= limit {
				if !cleanup {
					return nil
				}
				if err := s.deleteOldest(ctx, tx, subjectType, subjectID, len(revs)); err != nil {
					return err
				}
			}
		}

		if err := s.insertTx(ctx, tx, revs); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "写入修订失败", logging.String("subject", subjectType+":"+subjectID),
			logging.Int("count", len(revs)), logging.Int("limit", limit), logging.Error(err))
		return false, errors.WrapError(err, errors.ErrCodeStorageWrite, "insert revisions")
	}
	return written, nil
}

func (s *SQLStore) insertTx(ctx context.Context, tx core.ITransaction, revs []*revision.Revision) error {
	builder := sqlbuilder.New(tx).InsertInto(s.table).Columns(revisionColumns...)
	for _, r := range revs {
		extra, err := encodeAdditional(r.AdditionalFields)
		if err != nil {
			return fmt.Errorf("encode additional fields: %w", err)
		}
		builder.Values(
			r.ID, r.SubjectType, r.SubjectID, r.Key, nullString(r.OldValue), nullString(r.NewValue),
			nullString(r.ActorID), nullString(r.ActorType), nullString(r.IP),
			nullString(r.Name), nullString(r.Description), r.RevisionID, extra,
			dbTimeValue(r.CreatedAt), dbTimeValue(r.UpdatedAt),
		)
	}
	if _, err := builder.ExecChunked(ctx, insertChunkSize); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("duplicate revision id: %w", err)
		}
		return err
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, subjectType, subjectID string) ([]*revision.Revision, error) {
	rows, err := sqlbuilder.New(s.db).Select(revisionColumns...).
		From(s.table).
		Where(s.subjectCond(), subjectType, subjectID).
		OrderBy("created_at", false).
		OrderBy("id", false).
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabase(err, "query revisions")
	}
	return scanRevisions(rows)
}

func (s *SQLStore) QueryByType(ctx context.Context, subjectType string, limit int, order Order) ([]*revision.Revision, error) {
	desc := order != Asc
	rows, err := sqlbuilder.New(s.db).Select(revisionColumns...).
		From(s.table).
		Where(s.col("revisionable_type")+" = ?", subjectType).
		OrderBy("created_at", desc).
		OrderBy("id", desc).
		Limit(limit).
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabase(err, "query revisions by type")
	}
	return scanRevisions(rows)
}

func (s *SQLStore) QueryByActor(ctx context.Context, actorID, actorType string, limit int) ([]*revision.Revision, error) {
	builder := sqlbuilder.New(s.db).Select(revisionColumns...).
		From(s.table).
		Where(s.col("user_id")+" = ?", actorID)
	if actorType != "" {
		builder = builder.Where(s.col("user_type")+" = ?", actorType)
	}
	rows, err := builder.OrderBy("created_at", true).OrderBy("id", true).Limit(limit).Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabase(err, "query revisions by actor")
	}
	return scanRevisions(rows)
}

func (s *SQLStore) Count(ctx context.Context, subjectType, subjectID string) (int, error) {
	n, err := s.count(ctx, s.db, subjectType, subjectID)
	if err != nil {
		return 0, errors.WrapDatabase(err, "count revisions")
	}
	return n, nil
}

func (s *SQLStore) count(ctx context.Context, db core.IDatabase, subjectType, subjectID string) (int, error) {
	var n int
	err := sqlbuilder.New(db).Select("COUNT(*)").
		From(s.table).
		Where(s.subjectCond(), subjectType, subjectID).
		QueryRow(ctx).
		Scan(&n)
	return n, err
}

func (s *SQLStore) DeleteOldest(ctx context.Context, subjectType, subjectID string, count int) error {
	if count <= 0 {
		return nil
	}
	err := core.RunInTx(ctx, s.db, func(tx core.ITransaction) error {
		return s.deleteOldest(ctx, tx, subjectType, subjectID, count)
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeStorageWrite, "delete oldest revisions")
	}
	return nil
}

// deleteOldest 先按时间查出最旧的主键再按主键删除，不依赖 DELETE ... LIMIT
func (s *SQLStore) deleteOldest(ctx context.Context, db core.IDatabase, subjectType, subjectID string, count int) error {
	rows, err := sqlbuilder.New(db).Select("id").
		From(s.table).
		Where(s.subjectCond(), subjectType, subjectID).
		OrderBy("created_at", false).
		OrderBy("id", false).
		Limit(count).
		Query(ctx)
	if err != nil {
		return err
	}
	var ids []any
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()
	if len(ids) == 0 {
		return nil
	}

	_, err = sqlbuilder.New(db).DeleteFrom(s.table).WhereIn("id", ids...).Exec(ctx)
	return err
}

func (s *SQLStore) Purge(ctx context.Context, subjectType, subjectID string) (int64, error) {
	res, err := sqlbuilder.New(s.db).DeleteFrom(s.table).Where(s.subjectCond(), subjectType, subjectID).Exec(ctx)
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeStorageWrite, "purge revisions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapDatabase(err, "purge revisions")
	}
	s.logger.Info(ctx, "已清除主体的全部修订", logging.String("subject", subjectType+":"+subjectID), logging.Int64("deleted", n))
	return n, nil
}

func scanRevisions(rows core.IRows) ([]*revision.Revision, error) {
	defer rows.Close()

	var out []*revision.Revision
	for rows.Next() {
		var r revision.Revision
		var oldValue, newValue, actorID, actorType, ip sql.NullString
		var name, description, revisionID, extra sql.NullString
		var createdAt, updatedAt dbTime
		if err := rows.Scan(
			&r.ID, &r.SubjectType, &r.SubjectID, &r.Key, &oldValue, &newValue,
			&actorID, &actorType, &ip, &name, &description, &revisionID, &extra,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, errors.WrapDatabase(err, "scan revision")
		}
		r.OldValue = stringPtr(oldValue)
		r.NewValue = stringPtr(newValue)
		r.ActorID = stringPtr(actorID)
		r.ActorType = stringPtr(actorType)
		r.IP = stringPtr(ip)
		r.Name = stringPtr(name)
		r.Description = stringPtr(description)
		r.RevisionID = revisionID.String
		r.CreatedAt = createdAt.Time
		r.UpdatedAt = updatedAt.Time
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &r.AdditionalFields); err != nil {
				return nil, errors.WrapDatabase(err, "decode additional fields")
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabase(err, "iterate revisions")
	}
	return out, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func encodeAdditional(fields map[string]any) (any, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// dbTimeValue 统一写入微秒精度的 UTC 时间
func dbTimeValue(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// dbTime 兼容驱动返回 time.Time 或文本两种形式的时间列
type dbTime struct {
	Time time.Time
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v.UTC()
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported time column type %T", src)
	}
}

func (d *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time column %q", s)
}
