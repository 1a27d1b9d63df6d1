package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/internal/config"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/privacy"
	"github.com/syssam/tabula/queue"
	"github.com/syssam/tabula/schema"
)

// offline annotates the commands that do not connect to the database.
const offline = "offline"

// app is the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "tabula",
		Short: "Manage the database of YAML declared entity types",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if cmd.Annotations[offline] == "" {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a.cfg = cfg
			level := slog.LevelInfo
			if cfg.Debug {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if cfg.File != "" {
				a.logger.Debug("using config file", "path", cfg.File)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	pf.String("dialect", "", "database dialect (mysql, postgres, sqlite)")
	pf.String("dsn", "", "data source name")
	pf.String("driver", "", "postgres driver (pq, pgx)")
	pf.String("prefix", "", "table name prefix")
	pf.String("models", "", "YAML models file")
	pf.BoolP("verbose", "v", false, "log every statement")
	pf.Duration("slow-threshold", 0, "log statements slower than this")
	pf.Bool("row-permissions", false, "register the permission entities")
	pf.Bool("queue", false, "register the queue entity")

	root.AddCommand(
		newSchemaCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newGenCmd(a),
	)
	return root
}

// registry returns the entity types of the models file, plus the built in
// types enabled by the configuration.
func (a *app) registry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	if err := reg.LoadFile(a.cfg.Models); err != nil {
		return nil, fmt.Errorf("loading models: %w", err)
	}
	if a.cfg.RowPermissions {
		if err := privacy.Register(reg); err != nil {
			return nil, err
		}
	}
	if a.cfg.Queue {
		if err := queue.Register(reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// open connects to the configured database. The returned function closes
// the connection and logs the statement statistics.
func (a *app) open(ctx context.Context) (*model.Client, *sql.StatsDriver, func(), error) {
	reg, err := a.registry()
	if err != nil {
		return nil, nil, nil, err
	}
	drv, err := sql.Open(a.cfg.DriverName(), a.cfg.DSN, sql.WithPrefix(a.cfg.Prefix), sql.WithLogger(a.logger))
	if err != nil {
		return nil, nil, nil, err
	}
	stats := sql.NewStatsDriver(drv, sql.WithSlowThreshold(a.cfg.SlowThreshold), sql.WithSlowQueryLog())
	if version, err := drv.ServerInfo(ctx); err == nil {
		a.logger.Debug("connected", "dialect", drv.Dialect(), "version", version)
	}
	opts := []model.Option{model.WithLogger(a.logger)}
	if a.cfg.RowPermissions {
		opts = append(opts, model.OnDelete(privacy.DeleteRowPermissions))
	}
	closer := func() {
		a.logger.Debug("statements", "stats", stats.QueryStats().Stats().String())
		if err := drv.Close(); err != nil {
			a.logger.Error("closing connection", "error", err)
		}
	}
	return model.NewClient(reg, stats, opts...), stats, closer, nil
}
