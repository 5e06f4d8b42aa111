package chat

import (
	"context"
	"errors"

	"github.com/samber/lo"
)

func (s *Service) MarkDelivered(ctx context.Context, sess *Session, req ReceiptRequest) error {
	return s.mark(ctx, sess, req, ReceiptDelivered, EventMessageDelivered)
}

func (s *Service) MarkSeen(ctx context.Context, sess *Session, req ReceiptRequest) error {
	return s.mark(ctx, sess, req, ReceiptSeen, EventMessageSeen)
}

// mark adds the caller to a receipt set of each message. Every id is checked
// before anything is written, and only participants of the room may mark,
// so receipt sets stay within the room's participants.
func (s *Service) mark(ctx context.Context, sess *Session, req ReceiptRequest, kind ReceiptKind, event string) error {
	if err := s.check(req); err != nil {
		return err
	}
	if _, err := s.loadMemberRoom(ctx, req.RoomID, sess.UserID); err != nil {
		return err
	}

	ids := lo.Uniq(req.MessageIDs)
	for _, id := range ids {
		msg, err := s.store.FindMessage(ctx, id)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return newError(ErrNotFound, "Message %s not found", id)
			}
			return s.internal("find message", err, "message_id", id)
		}
		if msg.RoomID != req.RoomID {
			return newError(ErrNotFound, "Message %s not found in this room", id)
		}
	}

	for _, id := range ids {
		if err := s.store.AddReceipt(ctx, id, kind, sess.UserID); err != nil {
			return s.internal("add receipt", err, "message_id", id, "kind", kind)
		}
	}
	s.metrics.ReceiptsMarked.WithLabelValues(string(kind)).Add(float64(len(ids)))

	update := ReceiptUpdate{MessageIDs: ids, UserID: sess.UserID}
	if err := s.hub.Emit(ctx, RoomChannel(req.RoomID), event, update); err != nil {
		s.log.Error("Failed to broadcast receipt update", "room_id", req.RoomID, "kind", kind, "error", err)
	}
	return nil
}
