package sqldb

import (
	"context"
	"fmt"
	"strings"

	"mindfulweb/internal/domain"
)

func eventKindList() string {
	quoted := make([]string, len(domain.EventKinds))
	for i, k := range domain.EventKinds {
		quoted[i] = "'" + string(k) + "'"
	}
	return strings.Join(quoted, ", ")
}

func postgresSchema(d *dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) UNIQUE,
			password VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS domain_categories (
			id SERIAL PRIMARY KEY,
			name VARCHAR(50) NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS domain_category_mapping (
			domain VARCHAR(255) PRIMARY KEY,
			category_id INTEGER NOT NULL REFERENCES domain_categories(id)
		);`,
		`CREATE TABLE IF NOT EXISTS attention_events (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			domain VARCHAR(255) NOT NULL,
			event_type VARCHAR(10) NOT NULL CONSTRAINT valid_event_type CHECK (event_type IN (` + eventKindList() + `)),
			` + d.quote("timestamp") + ` TIMESTAMPTZ NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_attention_events_user_id ON attention_events(user_id);",
		`CREATE TABLE IF NOT EXISTS daily_domain_summaries (
			id SERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			domain VARCHAR(255) NOT NULL,
			date DATE NOT NULL,
			total_seconds INTEGER NOT NULL,
			focus_count INTEGER NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
}

func sqliteSchema(d *dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			password TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS domain_categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS domain_category_mapping (
			domain TEXT PRIMARY KEY,
			category_id INTEGER NOT NULL REFERENCES domain_categories(id)
		);`,
		`CREATE TABLE IF NOT EXISTS attention_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id),
			domain TEXT NOT NULL,
			event_type TEXT NOT NULL CONSTRAINT valid_event_type CHECK (event_type IN (` + eventKindList() + `)),
			` + d.quote("timestamp") + ` TIMESTAMP NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_attention_events_user_id ON attention_events(user_id);",
		`CREATE TABLE IF NOT EXISTS daily_domain_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id),
			domain TEXT NOT NULL,
			date DATE NOT NULL,
			total_seconds INTEGER NOT NULL,
			focus_count INTEGER NOT NULL,
			generated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
}

func mysqlSchema(d *dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id CHAR(36) PRIMARY KEY,
			email VARCHAR(255) UNIQUE,
			password VARCHAR(255),
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			deleted_at DATETIME(6) NULL
		);`,
		`CREATE TABLE IF NOT EXISTS domain_categories (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(50) NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS domain_category_mapping (
			domain VARCHAR(255) PRIMARY KEY,
			category_id INT NOT NULL,
			FOREIGN KEY (category_id) REFERENCES domain_categories(id)
		);`,
		`CREATE TABLE IF NOT EXISTS attention_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id CHAR(36) NOT NULL,
			domain VARCHAR(255) NOT NULL,
			event_type VARCHAR(10) NOT NULL,
			` + d.quote("timestamp") + ` DATETIME(6) NOT NULL,
			CONSTRAINT valid_event_type CHECK (event_type IN (` + eventKindList() + `)),
			INDEX idx_attention_events_user_id (user_id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS daily_domain_summaries (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id CHAR(36) NOT NULL,
			domain VARCHAR(255) NOT NULL,
			date DATE NOT NULL,
			total_seconds INT NOT NULL,
			focus_count INT NOT NULL,
			generated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
	}
}

// Migrate creates the schema if it does not exist. It is safe to run repeatedly.
func (m *Manager) Migrate(ctx context.Context) error {
	if m.dialect.schema == nil {
		return fmt.Errorf("migrate: no schema for dialect %s", m.dialect.name)
	}
	for _, stmt := range m.dialect.schema(m.dialect) {
		if _, err := m.engine.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", classify(err))
		}
	}
	return nil
}
