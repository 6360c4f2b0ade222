// Package migration applies versioned SQL migrations to SQLite databases.
//
// Migrations are read from an fs.FS (usually an embed.FS compiled into the
// binary) and must be named {version}_{description}.sql, for example
// "001_initial_schema.sql". Applied versions are tracked in the
// schema_migrations table; each migration runs in its own transaction
// together with its bookkeeping row.
//
// Example usage:
//
//	db, err := migration.NewConnectionManager(migration.DefaultSQLiteConfig(path)).GetConnection()
//	...
//	manager := migration.NewMigrationManager(migration.NewFileScanner(files), migration.NewSQLiteExecutor(db), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
