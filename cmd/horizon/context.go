package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"horizon/internal/config"
	"horizon/internal/logging"
	"horizon/internal/store"
)

type commandContext struct {
	configFlag *string
	dbPathFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, dbPathFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dbPathFlag: dbPathFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// storePath resolves the database file, preferring the --db-path flag over
// the configuration.
func (c *commandContext) storePath() (string, error) {
	if c.dbPathFlag != nil && strings.TrimSpace(*c.dbPathFlag) != "" {
		return config.ExpandPath(strings.TrimSpace(*c.dbPathFlag))
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Paths.StorePath, nil
}

func (c *commandContext) storeOptions() (store.Options, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return store.Options{}, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return store.Options{}, err
	}
	opts := store.Options{
		BackupPaths: cfg.AuxiliaryBackupPaths(),
		Logger:      logger,
	}
	// With an explicit --db-path the configured backup root would point at
	// another store's tree; let snapshots default to a sibling directory.
	if c.dbPathFlag == nil || strings.TrimSpace(*c.dbPathFlag) == "" {
		opts.BackupRoot = cfg.BackupRoot()
	}
	return opts, nil
}

func (c *commandContext) openStore(opts store.Options) (*store.Store, error) {
	path, err := c.storePath()
	if err != nil {
		return nil, err
	}
	return store.Open(path, opts)
}

// withMaintenanceLock serializes migrate and rollback against other
// horizon processes working on the same store file.
func (c *commandContext) withMaintenanceLock(fn func() error) error {
	path, err := c.storePath()
	if err != nil {
		return err
	}
	lock := flock.New(path + ".maintenance.lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another maintenance operation holds %s", lock.Path())
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}
