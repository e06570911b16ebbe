package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"revtrail/config"
	"revtrail/errors"
	"revtrail/logging"
)

// cli 一次命令执行的共享状态，由 PersistentPreRunE 填充
type cli struct {
	configPath string
	output     string
	logLevel   string

	cfg    *config.Config
	logger *logging.ZapLogger
	out    io.Writer
}

func execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{out: stdout}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if err == nil {
		return 0
	}
	if c.output == "json" {
		_ = json.NewEncoder(stdout).Encode(map[string]string{
			"error": err.Error(),
			"code":  string(errors.GetErrorCode(err)),
		})
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "revtrail",
		Short:         "Inspect and maintain field-level revision history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default ./revtrail.yaml)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "table", "Output format (table, json)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(c),
		newHistoryCmd(c),
		newFeedCmd(c),
		newActorCmd(c),
		newPruneCmd(c),
		newPurgeCmd(c),
		newTailCmd(c),
	)
	return root
}

// setup 校验输出格式、加载配置并安装 zap 日志
func (c *cli) setup() error {
	if c.output != "table" && c.output != "json" {
		return errors.NewError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported output format %q: use 'table' or 'json'", c.output))
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}

	logger, err := logging.NewZapProduction(logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "init logger")
	}
	logging.SetLogger(logger)

	c.cfg = cfg
	c.logger = logger
	return nil
}
