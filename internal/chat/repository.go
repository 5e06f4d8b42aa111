package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on the schema created by db.AutoMigrate.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const roomColumns = `id, type, COALESCE(name, ''), participant_key, creator_id, last_activity_at, created_at`

func (r *PostgresStore) FindRoom(ctx context.Context, id string) (*Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	return scanRoom(row)
}

func (r *PostgresStore) FindPrivateRoom(ctx context.Context, participants []int) (*Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE type = 'private' AND participant_key = $1`,
		ParticipantKey(participants))
	return scanRoom(row)
}

func (r *PostgresStore) InsertRoom(ctx context.Context, room *Room) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var name sql.NullString
	if room.Name != "" {
		name = sql.NullString{String: room.Name, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, type, name, participant_key, creator_id, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, string(room.Type), name, ParticipantKey(room.Participants),
		room.CreatorID, room.LastActivityAt, room.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}

	for _, userID := range room.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`,
			room.ID, userID); err != nil {
			return mapWriteError(err)
		}
	}
	return tx.Commit()
}

func (r *PostgresStore) TouchRoom(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET last_activity_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *PostgresStore) ListRooms(ctx context.Context, userID int) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE id IN (SELECT room_id FROM room_participants WHERE user_id = $1)
		ORDER BY last_activity_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func (r *PostgresStore) InsertMessage(ctx context.Context, msg *Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var sender sql.NullInt64
	if msg.SenderID != nil {
		sender = sql.NullInt64{Int64: int64(*msg.SenderID), Valid: true}
	}
	var notice sql.NullString
	if msg.NoticeKey != "" {
		notice = sql.NullString{String: msg.NoticeKey, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, content, system, notice_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.RoomID, sender, msg.Content, msg.System, notice, msg.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}

	for _, userID := range msg.DeliveredTo {
		if err := addReceipt(ctx, tx, msg.ID, ReceiptDelivered, userID); err != nil {
			return err
		}
	}
	for _, userID := range msg.SeenBy {
		if err := addReceipt(ctx, tx, msg.ID, ReceiptSeen, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const messageQuery = `
	SELECT m.id, m.room_id, m.sender_id, m.content, m.system, COALESCE(m.notice_key, ''), m.created_at,
		COALESCE((SELECT string_agg(d.user_id::text, ',' ORDER BY d.user_id)
			FROM message_receipts d WHERE d.message_id = m.id AND d.kind = 'delivered'), ''),
		COALESCE((SELECT string_agg(s.user_id::text, ',' ORDER BY s.user_id)
			FROM message_receipts s WHERE s.message_id = m.id AND s.kind = 'seen'), '')
	FROM messages m`

func (r *PostgresStore) FindMessage(ctx context.Context, id string) (*Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx, messageQuery+` WHERE m.id = $1`, id))
}

func (r *PostgresStore) FindNotice(ctx context.Context, roomID, noticeKey string) (*Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx,
		messageQuery+` WHERE m.room_id = $1 AND m.notice_key = $2`, roomID, noticeKey))
}

func (r *PostgresStore) AddReceipt(ctx context.Context, messageID string, kind ReceiptKind, userID int) error {
	return addReceipt(ctx, r.db, messageID, kind, userID)
}

func (r *PostgresStore) ListMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		messageQuery+` WHERE m.room_id = $1 AND m.created_at < $2 ORDER BY m.created_at DESC LIMIT $3`,
		roomID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// addReceipt only inserts when the user participates in the message's room,
// so receipt sets stay a subset of the participants.
func addReceipt(ctx context.Context, db execer, messageID string, kind ReceiptKind, userID int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO message_receipts (message_id, user_id, kind)
		SELECT m.id, p.user_id, $3::varchar
		FROM messages m
		JOIN room_participants p ON p.room_id = m.room_id AND p.user_id = $2
		WHERE m.id = $1
		ON CONFLICT DO NOTHING`, messageID, userID, string(kind))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*Room, error) {
	var (
		room Room
		typ  string
		key  string
	)
	err := row.Scan(&room.ID, &typ, &room.Name, &key, &room.CreatorID, &room.LastActivityAt, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	room.Type = RoomType(typ)
	if room.Participants, err = ParseParticipantKey(key); err != nil {
		return nil, fmt.Errorf("room %s: corrupt participant key: %w", room.ID, err)
	}
	return &room, nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		msg       Message
		sender    sql.NullInt64
		delivered string
		seen      string
	)
	err := row.Scan(&msg.ID, &msg.RoomID, &sender, &msg.Content, &msg.System, &msg.NoticeKey,
		&msg.CreatedAt, &delivered, &seen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if sender.Valid {
		id := int(sender.Int64)
		msg.SenderID = &id
	}
	if msg.DeliveredTo, err = ParseParticipantKey(delivered); err != nil {
		return nil, err
	}
	if msg.SeenBy, err = ParseParticipantKey(seen); err != nil {
		return nil, err
	}
	return &msg, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEntry
	}
	return err
}
