package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"revtrail/data/db/migrations"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/messaging"
	"revtrail/revision/notify"
	"revtrail/revision/resolve"
	"revtrail/revision/store"
)

// withRuntime 打开数据库执行 fn，结束后关闭
func (c *cli) withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	rt, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func newMigrateCmd(c *cli) *cobra.Command {
	var down, status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the revisions table migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withRuntime(ctx, func(rt *runtime) error {
				db, err := rt.sqlDB()
				if err != nil {
					return err
				}
				driver := c.cfg.Database.DriverName()

				switch {
				case status:
					// 只输出当前版本
				case down:
					if err := migrations.Down(ctx, db.SQLDB(), driver); err != nil {
						return errors.WrapError(err, errors.ErrCodeDatabase, "migrate down")
					}
				default:
					if err := migrations.Up(ctx, db.SQLDB(), driver); err != nil {
						return errors.WrapError(err, errors.ErrCodeDatabase, "migrate up")
					}
				}

				version, err := migrations.Version(ctx, db.SQLDB(), driver)
				if err != nil {
					return errors.WrapError(err, errors.ErrCodeDatabase, "migration version")
				}
				return c.printResult(map[string]any{"version": version},
					fmt.Sprintf("Schema version: %d", version))
			})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "Only print the current schema version")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history <type> <id>",
		Short: "Show the revision history of one subject, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withRuntime(ctx, func(rt *runtime) error {
				revs, err := rt.store.Query(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return c.printRevisions(ctx, rt.resolver, revs)
			})
		},
	}
}

func newFeedCmd(c *cli) *cobra.Command {
	var (
		limit int
		order string
	)
	cmd := &cobra.Command{
		Use:   "feed <type>",
		Short: "Show recent revisions across every subject of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if order != "asc" && order != "desc" {
				return errors.NewError(errors.ErrCodeInvalidInput, "order must be asc or desc")
			}
			ctx := cmd.Context()
			return c.withRuntime(ctx, func(rt *runtime) error {
				revs, err := rt.store.QueryByType(ctx, args[0], limit, store.ParseOrder(order))
				if err != nil {
					return err
				}
				return c.printRevisions(ctx, rt.resolver, revs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of revisions (0 for no limit)")
	cmd.Flags().StringVar(&order, "order", "desc", "Sort order by creation time (asc, desc)")
	return cmd
}

func newActorCmd(c *cli) *cobra.Command {
	var (
		actorType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "actor <id>",
		Short: "Show the revisions made by one actor, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withRuntime(ctx, func(rt *runtime) error {
				revs, err := rt.store.QueryByActor(ctx, args[0], actorType, limit)
				if err != nil {
					return err
				}
				return c.printRevisions(ctx, rt.resolver, revs)
			})
		},
	}
	cmd.Flags().StringVar(&actorType, "type", "", "Actor type (user_type); empty matches any")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of revisions (0 for no limit)")
	return cmd
}

func newPruneCmd(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "prune <type> <id>",
		Short: "Delete the oldest revisions of one subject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.NewError(errors.ErrCodeInvalidInput, "--count must be positive")
			}
			ctx := cmd.Context()
			return c.withRuntime(ctx, func(rt *runtime) error {
				before, err := rt.store.Count(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if err := rt.store.DeleteOldest(ctx, args[0], args[1], count); err != nil {
					return err
				}
				after, err := rt.store.Count(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				logging.GetLogger().Info(ctx, "已清理最旧的修订",
					logging.String("subject", args[0]+":"+args[1]), logging.Int("deleted", before-after))
				return c.printResult(
					map[string]any{"deleted": before - after, "remaining": after},
					fmt.Sprintf("Deleted %d revisions, %d remaining.", before-after, after))
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Number of oldest revisions to delete")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func newPurgeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <type> <id>",
		Short: "Delete every revision of one subject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withRuntime(ctx, func(rt *runtime) error {
				n, err := rt.store.Purge(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				logging.GetLogger().Info(ctx, "已删除主体的全部修订",
					logging.String("subject", args[0]+":"+args[1]), logging.Int64("deleted", n))
				return c.printResult(map[string]any{"deleted": n}, fmt.Sprintf("Deleted %d revisions.", n))
			})
		},
	}
}

func newTailCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Follow revision.recorded notifications from the configured broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tpt, err := c.transport()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.tail(ctx, tpt)
		},
	}
}

// tail 订阅修订通知并逐批输出，直到 ctx 结束
func (c *cli) tail(ctx context.Context, tpt messaging.Transport) error {
	registry, err := c.cfg.Registry()
	if err != nil {
		return err
	}
	r := resolve.NewResolver(resolve.Options{Registry: registry})

	handler := messaging.NewHandler("revtrail-tail", func(ctx context.Context, msg messaging.IMessage) error {
		recorded, err := notify.Decode(msg)
		if err != nil {
			return err
		}
		return c.printRevisions(ctx, r, recorded.Revisions)
	})
	if err := tpt.Subscribe(notify.MessageType, handler); err != nil {
		return err
	}
	if err := tpt.Start(ctx); err != nil {
		return err
	}
	defer tpt.Close()

	logging.GetLogger().Info(ctx, "开始接收修订通知", logging.String("driver", c.cfg.Notify.Driver))
	<-ctx.Done()
	return nil
}
