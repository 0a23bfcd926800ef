package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	dir      string
	name     string
	version  string
	embedded bool
}

// command is one -cmd value. Commands with a nil dbRun work on files only.
type command struct {
	fileRun func(opts options) error
	dbRun   func(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error
}

var commands = map[string]command{
	"create": {fileRun: func(opts options) error {
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {fileRun: func(opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		if err := migrate.ValidateEmbedded(); err != nil {
			return fmt.Errorf("embedded: %w", err)
		}
		fmt.Println("migration validation passed")
		return nil
	}},
	"up": {dbRun: func(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error {
		if opts.embedded {
			return migrate.UpEmbedded(ctx, sqlDB, dialect)
		}
		return migrate.Run(ctx, sqlDB, dialect, opts.dir, "up")
	}},
	"down":   {dbRun: gooseCommand("down")},
	"status": {dbRun: gooseCommand("status")},
	"version": {dbRun: func(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error {
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dialect, opts.dir, opts.version)
	}},
}

func gooseCommand(name string) func(context.Context, *sql.DB, string, options) error {
	return func(ctx context.Context, sqlDB *sql.DB, dialect string, opts options) error {
		return migrate.Run(ctx, sqlDB, dialect, opts.dir, name)
	}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	cmdName := flag.String("cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.BoolVar(&opts.embedded, "embedded", false, "apply the migrations compiled into the binary (up only)")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd value %q (want %s)\n", *cmdName, commandNames())
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmdName,
		"dir": opts.dir,
	})

	if err := run(ctx, logg, cfg, cmd, opts); err != nil {
		logg.Error(ctx, "migrate command failed", err)
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmdName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, cfg *config.Config, cmd command, opts options) error {
	if cmd.dbRun == nil {
		return cmd.fileRun(opts)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}

	dialect := migrate.DialectFor(cfg.DB)
	ctx = logg.WithField(ctx, "dialect", dialect)
	logg.Info(ctx, "migrate ready")
	return cmd.dbRun(ctx, sqlDB, dialect, opts)
}
