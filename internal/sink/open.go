// Package sink persists generated datasets to relational storage. Every
// sink drops and recreates its tables on Migrate and writes each Write call
// in a single transaction.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AngelCh415/marketing-datagen/internal/generator"
	"github.com/AngelCh415/marketing-datagen/internal/utils"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var ErrUnknownDriver = errors.New("unknown database driver")

type Sink interface {
	generator.Writer
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Sink = (*SQLite)(nil)
	_ Sink = (*Postgres)(nil)
	_ Sink = (*MySQL)(nil)
)

// Open connects to driver at dsn. Network databases are pinged with
// backoff so a run can start alongside a database that is still booting.
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (Sink, error) {
	bo := utils.NewBackoff(500*time.Millisecond, 4)
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(dsn)
	case DriverPostgres:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := ping(ctx, bo, log, driver, db); err != nil {
			db.Close()
			return nil, err
		}
		return NewPostgres(db), nil
	case DriverMySQL:
		gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		db, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		if err := ping(ctx, bo, log, driver, db); err != nil {
			db.Close()
			return nil, err
		}
		return NewMySQL(gdb), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

func ping(ctx context.Context, bo utils.Backoff, log *slog.Logger, driver string, db *sql.DB) error {
	err := bo.Do(ctx, func(i int) error {
		err := db.PingContext(ctx)
		if err != nil {
			log.Warn("database not ready", "driver", driver, "attempt", i+1, "err", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: ping: %w", driver, err)
	}
	return nil
}
