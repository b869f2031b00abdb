// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql (for example
// "001_documents.sql") and are applied in ascending version order, each in
// its own transaction. Applied versions are tracked in schema_migrations so
// a file never runs twice.
//
//	if err := migration.Run(ctx, db, migrationFiles, logger); err != nil {
//		return err
//	}
package migration
