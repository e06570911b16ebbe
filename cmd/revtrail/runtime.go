package main

import (
	"context"

	core "revtrail/data/db"
	"revtrail/data/db/basic"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
	"revtrail/messaging/transport/natsjetstream"
	"revtrail/messaging/transport/redisstreams"
	"revtrail/revision"
	"revtrail/revision/resolve"
	"revtrail/revision/sqlrepo"
	"revtrail/revision/store"
)

// runtime 打开的数据库与由其构造的组件
type runtime struct {
	db       core.IDatabase
	store    *store.SQLStore
	registry *revision.Registry
	resolver *resolve.Resolver
}

func (c *cli) open(ctx context.Context) (*runtime, error) {
	database, err := basic.New(c.cfg.Database)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "open database")
	}

	registry, err := c.cfg.Registry()
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	models, err := sqlrepo.NewTableRepository(database, c.cfg.Models)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	logging.GetLogger().Debug(ctx, "数据库已连接", logging.String("driver", c.cfg.Database.DriverName()))
	return &runtime{
		db:       database,
		store:    store.NewSQLStore(database, store.WithTable(c.cfg.Revision.Table)),
		registry: registry,
		resolver: resolve.NewResolver(resolve.Options{Registry: registry, Models: models}),
	}, nil
}

func (r *runtime) Close() error {
	return r.db.Close()
}

// sqlDB 迁移需要底层 *sql.DB
func (r *runtime) sqlDB() (*basic.DB, error) {
	db, ok := r.db.(*basic.DB)
	if !ok {
		return nil, errors.NewError(errors.ErrCodeInternal, "migrations need a database/sql connection")
	}
	return db, nil
}

// transport 按 notify.driver 创建消息传输
func (c *cli) transport() (messaging.Transport, error) {
	n := c.cfg.Notify
	switch n.Driver {
	case "redis":
		t, err := redisstreams.NewTransport(n.Redis)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "nats":
		return natsjetstream.NewTransport(n.NATS), nil
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "notify.driver is not configured")
	}
}
