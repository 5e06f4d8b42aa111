package chat

import "context"

// Typing relays a typing indicator to the other members subscribed to the
// room. Nothing is stored and nothing is reported back to the caller.
func (s *Service) Typing(ctx context.Context, sess *Session, roomID string) {
	s.relayTyping(ctx, sess, roomID, EventTyping, TypingNotice{UserID: sess.UserID, Username: sess.Username})
}

func (s *Service) StopTyping(ctx context.Context, sess *Session, roomID string) {
	s.relayTyping(ctx, sess, roomID, EventStopTyping, TypingNotice{UserID: sess.UserID})
}

func (s *Service) relayTyping(ctx context.Context, sess *Session, roomID, event string, notice TypingNotice) {
	if roomID == "" {
		s.log.Warn("Typing event missing room id", "event", event, "user_id", sess.UserID)
		return
	}
	if err := s.hub.EmitExcept(ctx, RoomChannel(roomID), sess.UserID, event, notice); err != nil {
		s.log.Error("Failed to relay typing event", "event", event, "room_id", roomID, "error", err)
	}
}
