package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Pure Go SQLite driver (no CGO), registered as "sqlite".
	_ "modernc.org/sqlite"
)

// Store holds the gorm handle and provides access to repositories.
// A Store returned by WithTx is bound to that transaction.
type Store struct {
	db *gorm.DB
}

// Config selects the database backend.
type Config struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
	Debug  bool // log every SQL statement
}

// Open connects to the configured database and runs auto-migration.
func Open(cfg Config) (*Store, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.Debug {
		gcfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		db, err = gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: cfg.DSN}), gcfg)
		if err == nil {
			err = configureSQLite(db)
		}
	case "postgres", "postgresql":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return s, nil
}

// OpenSQLite is shorthand for a SQLite store at dsn.
func OpenSQLite(dsn string) (*Store, error) {
	return Open(Config{Driver: "sqlite", DSN: dsn})
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&Session{},
		&ActivityProgress{},
		&Message{},
		&Lesson{},
		&LLMEvent{},
	)
}

// configureSQLite pins the pool to one connection so pragmas stick and
// writers never contend for the file lock.
func configureSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a transaction. Every repository obtained from the
// Store passed to fn writes through that transaction; returning an error
// rolls all of them back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Sessions() SessionRepo  { return &sessionRepo{db: s.db} }
func (s *Store) Progress() ProgressRepo { return &progressRepo{db: s.db} }
func (s *Store) Messages() MessageRepo  { return &messageRepo{db: s.db} }
func (s *Store) Lessons() LessonRepo    { return &lessonRepo{db: s.db} }
func (s *Store) EventRepo() EventRepo   { return &eventRepo{db: s.db} }

// DefaultDBPath resolves the SQLite file path in priority order:
// 1. INSTRUCTORIA_DB environment variable
// 2. $XDG_DATA_HOME/instructoria/instructoria.db
// 3. ~/.local/share/instructoria/instructoria.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("INSTRUCTORIA_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "instructoria", "instructoria.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
