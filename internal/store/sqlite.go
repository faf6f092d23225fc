package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS regions (
			code TEXT PRIMARY KEY,
			position INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS region_aliases (
			alias TEXT PRIMARY KEY,
			region_code TEXT NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY(region_code) REFERENCES regions(code) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS tags (
			tag TEXT PRIMARY KEY,
			position INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalog_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			stamped_at_unix_nano INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_stamped_at ON messages(stamped_at_unix_nano);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id);`,
		`CREATE TABLE IF NOT EXISTS message_regions (
			message_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			region_code TEXT NOT NULL,
			PRIMARY KEY(message_id, position),
			FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_message_regions_code ON message_regions(region_code, message_id);`,
		`CREATE TABLE IF NOT EXISTS message_tags (
			message_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			tag TEXT NOT NULL,
			PRIMARY KEY(message_id, position),
			FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_message_tags_tag ON message_tags(tag, message_id);`,
		`CREATE TABLE IF NOT EXISTS watermarks (
			user_id INTEGER NOT NULL,
			region_code TEXT NOT NULL,
			served_at_unix_nano INTEGER NOT NULL,
			PRIMARY KEY(user_id, region_code)
		);`,
		`CREATE TABLE IF NOT EXISTS user_access (
			user_id INTEGER NOT NULL,
			region_code TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY(user_id, region_code)
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			user_group TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
		`CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func placeholders(count int) string {
	if count < 1 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
