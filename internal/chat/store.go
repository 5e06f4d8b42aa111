//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package chat

import (
	"context"
	"time"
)

// Store is the persistence collaborator of the chat core. Implementations
// must enforce two uniqueness constraints and report violations as
// ErrDuplicateEntry: one private room per participant pair, and one system
// notice per (room, notice key).
type Store interface {
	FindRoom(ctx context.Context, id string) (*Room, error)
	FindPrivateRoom(ctx context.Context, participants []int) (*Room, error)
	InsertRoom(ctx context.Context, room *Room) error
	TouchRoom(ctx context.Context, id string, at time.Time) error
	ListRooms(ctx context.Context, userID int) ([]Room, error)

	InsertMessage(ctx context.Context, msg *Message) error
	FindMessage(ctx context.Context, id string) (*Message, error)
	FindNotice(ctx context.Context, roomID, noticeKey string) (*Message, error)
	// AddReceipt is an atomic add-to-set on deliveredTo or seenBy.
	AddReceipt(ctx context.Context, messageID string, kind ReceiptKind, userID int) error
	ListMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]Message, error)

	Ping(ctx context.Context) error
}

// Directory resolves display names. It is a soft dependency.
type Directory interface {
	LookupUsername(ctx context.Context, userID int) (string, error)
}
