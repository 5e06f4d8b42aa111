package chat

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// SendMessage persists a message and delivers it to every participant's
// personal channel. Calls from one connection are handled in arrival order
// by the caller, which gives per-connection ordering.
func (s *Service) SendMessage(ctx context.Context, sess *Session, req SendMessageRequest) (*MessageView, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := s.check(req); err != nil {
		return nil, err
	}

	if !s.limiter.Allow(sess.UserID) {
		s.metrics.RateLimited.Inc()
		s.log.Debug("Send rate limited", "user_id", sess.UserID)
		return nil, newError(ErrRateLimited, "Too many messages. Slow down.")
	}

	// Membership can change, so it is checked on every send.
	room, err := s.loadMemberRoom(ctx, req.RoomID, sess.UserID)
	if err != nil {
		return nil, err
	}
	log := s.log.With("user_id", sess.UserID, "room_id", room.ID)

	now := s.now()
	senderID := sess.UserID
	msg := &Message{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		SenderID:    &senderID,
		Content:     req.Content,
		DeliveredTo: []int{sess.UserID},
		SeenBy:      []int{},
		CreatedAt:   now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, s.internal("insert message", err, "room_id", room.ID)
	}
	if err := s.store.TouchRoom(ctx, room.ID, now); err != nil {
		log.Warn("Failed to update room activity", "error", err)
	}

	view := s.messageView(ctx, msg, map[int]string{sess.UserID: sess.Username})
	for _, id := range room.Participants {
		if err := s.hub.Emit(ctx, UserChannel(id), EventReceiveMessage, view); err != nil {
			log.Error("Failed to broadcast message", "target_user", id, "error", err)
		}
	}
	s.metrics.MessagesSent.Inc()
	log.Debug("Message sent", "message_id", msg.ID)
	return view, nil
}

// History returns one page of a room's messages, oldest first, flagged with
// the reader's own receipt state.
func (s *Service) History(ctx context.Context, userID int, roomID string, before time.Time, limit int) ([]MessageView, error) {
	if err := s.check(RoomRequest{RoomID: roomID}); err != nil {
		return nil, err
	}
	if _, err := s.loadMemberRoom(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	limit = min(limit, MaxHistoryLimit)
	if before.IsZero() {
		before = s.now().Add(time.Second)
	}

	msgs, err := s.store.ListMessages(ctx, roomID, before, limit)
	if err != nil {
		return nil, s.internal("list messages", err, "room_id", roomID)
	}
	slices.Reverse(msgs)

	names := make(map[int]string)
	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		view := s.messageView(ctx, &msgs[i], names)
		delivered := lo.Contains(msgs[i].DeliveredTo, userID)
		seen := lo.Contains(msgs[i].SeenBy, userID)
		view.Delivered, view.Seen = &delivered, &seen
		views = append(views, *view)
	}
	return views, nil
}
