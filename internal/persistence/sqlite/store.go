// Package sqlite implements the persistence repositories on SQLite.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/shiftline/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store owns the connection pool and hands out repositories bound to it.
type Store struct {
	pool          *ConnectionPool
	logger        *slog.Logger
	Users         *UserRepository
	Chats         *ChatRepository
	Messages      *MessageRepository
	Notifications *NotificationRepository
}

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return NewStore(pool, logger), nil
}

// NewStore builds a Store around an existing pool.
func NewStore(pool *ConnectionPool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:          pool,
		logger:        logger,
		Users:         NewUserRepository(pool),
		Chats:         NewChatRepository(pool),
		Messages:      NewMessageRepository(pool),
		Notifications: NewNotificationRepository(pool),
	}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate sqlite store: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
