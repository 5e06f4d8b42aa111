package chat_test

import (
	"context"
	"testing"

	"roomcast/internal/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMarkReceipts_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.connect(t, 1)
	bob, _ := f.connect(t, 2)
	roomID := f.privateRoom(t, alice, 2)
	msg, err := f.service.SendMessage(ctx, alice, chat.SendMessageRequest{RoomID: roomID, Content: "hi"})
	req.NoError(err)

	for i := 0; i < 3; i++ {
		req.NoError(f.service.MarkSeen(ctx, bob, chat.ReceiptRequest{RoomID: roomID, MessageIDs: []string{msg.ID, msg.ID}}))
	}
	// The sender marking their own message is harmless
	req.NoError(f.service.MarkDelivered(ctx, alice, chat.ReceiptRequest{RoomID: roomID, MessageIDs: []string{msg.ID}}))

	stored, err := f.store.FindMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal([]int{1}, stored.DeliveredTo)
	req.Equal([]int{2}, stored.SeenBy)
}

func TestMarkReceipts_AllOrNothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	alice, aliceConn := f.connect(t, 1)
	bob, _ := f.connect(t, 2)
	roomID := f.privateRoom(t, alice, 2)
	otherRoom := f.privateRoom(t, bob, 3)
	req.NoError(f.service.JoinRoom(ctx, alice, roomID))

	msg, err := f.service.SendMessage(ctx, alice, chat.SendMessageRequest{RoomID: roomID, Content: "hi"})
	req.NoError(err)
	foreign, err := f.service.SendMessage(ctx, bob, chat.SendMessageRequest{RoomID: otherRoom, Content: "elsewhere"})
	req.NoError(err)

	tests := []struct {
		name string
		ids  []string
	}{
		{"Unknown message", []string{msg.ID, uuid.NewString()}},
		{"Message from another room", []string{msg.ID, foreign.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := f.service.MarkSeen(ctx, bob, chat.ReceiptRequest{RoomID: roomID, MessageIDs: tt.ids})
			req.ErrorIs(err, chat.ErrNotFound)

			stored, err := f.store.FindMessage(ctx, msg.ID)
			req.NoError(err)
			req.Empty(stored.SeenBy)
			req.Empty(aliceConn.named(chat.EventMessageSeen))
		})
	}
}

func TestMarkReceipts_NonParticipantRejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	alice, _ := f.connect(t, 1)
	dave, _ := f.connect(t, 4)
	roomID := f.privateRoom(t, alice, 2)
	msg, err := f.service.SendMessage(ctx, alice, chat.SendMessageRequest{RoomID: roomID, Content: "hi"})
	req.NoError(err)

	err = f.service.MarkDelivered(ctx, dave, chat.ReceiptRequest{RoomID: roomID, MessageIDs: []string{msg.ID}})
	req.ErrorIs(err, chat.ErrAuthorization)

	stored, err := f.store.FindMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal([]int{1}, stored.DeliveredTo)
}

func TestMarkReceipts_Validation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, _ := f.connect(t, 1)
	roomID := f.privateRoom(t, alice, 2)

	err := f.service.MarkSeen(context.Background(), alice, chat.ReceiptRequest{RoomID: roomID})
	req.ErrorIs(err, chat.ErrValidation)

	err = f.service.MarkSeen(context.Background(), alice, chat.ReceiptRequest{RoomID: roomID, MessageIDs: []string{"abc"}})
	req.ErrorIs(err, chat.ErrValidation)
}
