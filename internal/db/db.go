package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// The users table belongs to the account service; it is created here so a
// fresh database can be used for development.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY,
		type VARCHAR(10) NOT NULL CHECK (type IN ('private', 'group')),
		name VARCHAR(100),
		participant_key TEXT NOT NULL,
		creator_id INT NOT NULL,
		last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (type = 'private' OR name IS NOT NULL)
	)`,

	// One private room per canonical participant pair.
	`CREATE UNIQUE INDEX IF NOT EXISTS rooms_private_pair_uq
		ON rooms (type, participant_key) WHERE type = 'private'`,

	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id UUID REFERENCES rooms(id) ON DELETE CASCADE,
		user_id INT NOT NULL,
		PRIMARY KEY (room_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS room_participants_user_idx ON room_participants (user_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id INT,
		content TEXT NOT NULL,
		system BOOLEAN NOT NULL DEFAULT FALSE,
		notice_key TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (system OR (sender_id IS NOT NULL AND char_length(content) BETWEEN 1 AND 1000))
	)`,

	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at DESC)`,

	// One system notice per (room, event); closes the duplicate join-notice race.
	`CREATE UNIQUE INDEX IF NOT EXISTS messages_notice_uq
		ON messages (room_id, notice_key) WHERE notice_key IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS message_receipts (
		message_id UUID REFERENCES messages(id) ON DELETE CASCADE,
		user_id INT NOT NULL,
		kind VARCHAR(10) NOT NULL CHECK (kind IN ('delivered', 'seen')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (message_id, user_id, kind)
	)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range migrations {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
