package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newRoom(typ RoomType, participants ...int) *Room {
	now := time.Now()
	return &Room{
		ID:             uuid.NewString(),
		Type:           typ,
		Participants:   Canonicalize(participants),
		CreatorID:      participants[0],
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

func TestMemoryStore_PrivatePairIsUnique(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	first := newRoom(RoomPrivate, 1, 2)
	req.NoError(store.InsertRoom(ctx, first))

	// Given the same pair in the other order
	second := newRoom(RoomPrivate, 2, 1)
	req.ErrorIs(store.InsertRoom(ctx, second), ErrDuplicateEntry)

	found, err := store.FindPrivateRoom(ctx, []int{1, 2})
	req.NoError(err)
	req.Equal(first.ID, found.ID)

	// Group rooms over the same members are not constrained
	req.NoError(store.InsertRoom(ctx, newRoom(RoomGroup, 1, 2, 3)))
	req.NoError(store.InsertRoom(ctx, newRoom(RoomGroup, 1, 2, 3)))
}

func TestMemoryStore_NoticeKeyIsUniquePerRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	roomA := newRoom(RoomGroup, 1, 2, 3)
	roomB := newRoom(RoomGroup, 1, 2, 3)
	req.NoError(store.InsertRoom(ctx, roomA))
	req.NoError(store.InsertRoom(ctx, roomB))

	notice := func(roomID string) *Message {
		return &Message{ID: uuid.NewString(), RoomID: roomID, Content: "joined", System: true, NoticeKey: "join:2", CreatedAt: time.Now()}
	}
	req.NoError(store.InsertMessage(ctx, notice(roomA.ID)))
	req.ErrorIs(store.InsertMessage(ctx, notice(roomA.ID)), ErrDuplicateEntry)
	req.NoError(store.InsertMessage(ctx, notice(roomB.ID)))

	found, err := store.FindNotice(ctx, roomA.ID, "join:2")
	req.NoError(err)
	req.True(found.System)

	_, err = store.FindNotice(ctx, roomA.ID, "join:3")
	req.ErrorIs(err, ErrRecordNotFound)
}

func TestMemoryStore_MessageNeedsRoom(t *testing.T) {
	req := require.New(t)
	store := NewMemoryStore()
	err := store.InsertMessage(context.Background(), &Message{ID: uuid.NewString(), RoomID: uuid.NewString(), Content: "hi"})
	req.ErrorIs(err, ErrRecordNotFound)
}

func TestMemoryStore_AddReceiptIsSetUnion(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	room := newRoom(RoomPrivate, 1, 2)
	req.NoError(store.InsertRoom(ctx, room))
	sender := 1
	msg := &Message{ID: uuid.NewString(), RoomID: room.ID, SenderID: &sender, Content: "hi", DeliveredTo: []int{1}, SeenBy: []int{}}
	req.NoError(store.InsertMessage(ctx, msg))

	req.NoError(store.AddReceipt(ctx, msg.ID, ReceiptDelivered, 2))
	req.NoError(store.AddReceipt(ctx, msg.ID, ReceiptDelivered, 2))
	req.NoError(store.AddReceipt(ctx, msg.ID, ReceiptSeen, 2))

	got, err := store.FindMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal([]int{1, 2}, got.DeliveredTo)
	req.Equal([]int{2}, got.SeenBy)

	req.ErrorIs(store.AddReceipt(ctx, uuid.NewString(), ReceiptSeen, 2), ErrRecordNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	room := newRoom(RoomGroup, 1, 2, 3)
	req.NoError(store.InsertRoom(ctx, room))

	got, err := store.FindRoom(ctx, room.ID)
	req.NoError(err)
	got.Participants[0] = 99

	again, err := store.FindRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal([]int{1, 2, 3}, again.Participants)
}

func TestMemoryStore_ListOrdering(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	older := newRoom(RoomPrivate, 1, 2)
	newer := newRoom(RoomPrivate, 1, 3)
	req.NoError(store.InsertRoom(ctx, older))
	req.NoError(store.InsertRoom(ctx, newer))
	req.NoError(store.TouchRoom(ctx, newer.ID, time.Now().Add(time.Minute)))

	rooms, err := store.ListRooms(ctx, 1)
	req.NoError(err)
	req.Len(rooms, 2)
	req.Equal(newer.ID, rooms[0].ID)

	rooms, err = store.ListRooms(ctx, 3)
	req.NoError(err)
	req.Len(rooms, 1)

	base := time.Now()
	for i := 0; i < 5; i++ {
		req.NoError(store.InsertMessage(ctx, &Message{
			ID: uuid.NewString(), RoomID: older.ID, Content: "m", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	msgs, err := store.ListMessages(ctx, older.ID, base.Add(time.Hour), 3)
	req.NoError(err)
	req.Len(msgs, 3)
	req.True(msgs[0].CreatedAt.After(msgs[1].CreatedAt))

	msgs, err = store.ListMessages(ctx, older.ID, base.Add(2*time.Second), 10)
	req.NoError(err)
	req.Len(msgs, 2)
}
