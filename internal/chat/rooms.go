package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const noticeCreated = "created"

func joinNoticeKey(userID int) string { return "join:" + strconv.Itoa(userID) }

// CreateRoom creates a room, or returns the existing private room for the
// same pair. The requester is always a participant.
func (s *Service) CreateRoom(ctx context.Context, sess *Session, req CreateRoomRequest) (*CreateRoomResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if lo.SomeBy(req.ParticipantIDs, func(id int) bool { return id <= 0 }) {
		return nil, newError(ErrValidation, "Participant ids must be positive")
	}

	participants := Canonicalize(append(slices.Clone(req.ParticipantIDs), sess.UserID))
	switch req.Type {
	case RoomPrivate:
		if len(participants) != MinParticipants {
			return nil, newError(ErrValidation, "A private room needs exactly one other participant")
		}
	case RoomGroup:
		if len(participants) <= MinParticipants {
			return nil, newError(ErrValidation, "A group room needs at least two other participants")
		}
		if len(participants) > MaxParticipants {
			return nil, newError(ErrValidation, "A room holds at most %d participants", MaxParticipants)
		}
	}

	log := s.log.With("user_id", sess.UserID, "type", req.Type)
	names := make(map[int]string)

	if req.Type == RoomPrivate {
		existing, err := s.store.FindPrivateRoom(ctx, participants)
		if err == nil {
			log.Debug("Private room exists", "room_id", existing.ID)
			return s.existingRoom(ctx, existing, names), nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, s.internal("find private room", err)
		}
	}

	now := s.now()
	room := &Room{
		ID:             uuid.NewString(),
		Type:           req.Type,
		Participants:   participants,
		CreatorID:      sess.UserID,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if req.Type == RoomGroup {
		room.Name = req.Name
		if room.Name == "" {
			room.Name = DefaultGroupName
		}
	}

	if err := s.store.InsertRoom(ctx, room); err != nil {
		if req.Type == RoomPrivate && errors.Is(err, ErrDuplicateEntry) {
			// A concurrent create won; hand back its room.
			winner, ferr := s.store.FindPrivateRoom(ctx, participants)
			if ferr != nil {
				return nil, s.internal("refetch private room", ferr)
			}
			log.Debug("Private room creation race resolved", "room_id", winner.ID)
			return s.existingRoom(ctx, winner, names), nil
		}
		return nil, s.internal("insert room", err)
	}
	log = log.With("room_id", room.ID)

	if room.Type == RoomGroup {
		notice := &Message{
			ID:        uuid.NewString(),
			RoomID:    room.ID,
			Content:   fmt.Sprintf("Group created by %s", s.resolveName(ctx, sess.UserID, names)),
			System:    true,
			NoticeKey: noticeCreated,
			CreatedAt: now,
		}
		if err := s.store.InsertMessage(ctx, notice); err != nil {
			// The room exists; its participants still need to hear about it.
			log.Error("Failed to store group creation notice", "error", err)
		}
	}

	view := s.roomView(ctx, room, names)
	for _, id := range room.Participants {
		if err := s.hub.Emit(ctx, UserChannel(id), EventNewRoom, view); err != nil {
			log.Error("Failed to broadcast new room", "target_user", id, "error", err)
		}
	}
	s.metrics.RoomsCreated.WithLabelValues(string(room.Type)).Inc()
	log.Info("Room created", "participants", len(room.Participants))

	return &CreateRoomResult{Success: true, Room: view, Message: "Room created"}, nil
}

func (s *Service) existingRoom(ctx context.Context, room *Room, names map[int]string) *CreateRoomResult {
	return &CreateRoomResult{
		Success: true,
		Room:    s.roomView(ctx, room, names),
		Message: "Room exists",
		Existed: true,
	}
}

// JoinRoom subscribes the connection to a room it participates in. The first
// join of a user to a group room leaves one system notice.
func (s *Service) JoinRoom(ctx context.Context, sess *Session, roomID string) error {
	if err := s.check(RoomRequest{RoomID: roomID}); err != nil {
		return err
	}
	room, err := s.loadMemberRoom(ctx, roomID, sess.UserID)
	if err != nil {
		return err
	}
	if !sess.join(roomID) {
		return nil
	}
	s.hub.Subscribe(RoomChannel(roomID), sess.Conn)

	if room.Type != RoomGroup {
		return nil
	}
	return s.announceJoin(ctx, sess, room)
}

func (s *Service) announceJoin(ctx context.Context, sess *Session, room *Room) error {
	log := s.log.With("user_id", sess.UserID, "room_id", room.ID)
	key := joinNoticeKey(sess.UserID)

	_, err := s.store.FindNotice(ctx, room.ID, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return s.internal("find join notice", err, "room_id", room.ID)
	}

	notice := &Message{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		Content:   fmt.Sprintf("User %s joined the group", sess.Username),
		System:    true,
		NoticeKey: key,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertMessage(ctx, notice); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			log.Debug("Join notice already written by a concurrent join")
			return nil
		}
		return s.internal("insert join notice", err, "room_id", room.ID)
	}

	if err := s.hub.Emit(ctx, RoomChannel(room.ID), EventReceiveMessage, s.messageView(ctx, notice, nil)); err != nil {
		log.Error("Failed to broadcast join notice", "error", err)
	}
	return nil
}

// LeaveRoom only drops the room subscription.
func (s *Service) LeaveRoom(_ context.Context, sess *Session, roomID string) error {
	if roomID == "" {
		s.log.Warn("Leave without room id", "user_id", sess.UserID)
		return newError(ErrValidation, "Room ID required to leave")
	}
	sess.leave(roomID)
	s.hub.Unsubscribe(RoomChannel(roomID), sess.Conn)
	return nil
}

// ListRooms returns the user's rooms, most recently active first.
func (s *Service) ListRooms(ctx context.Context, userID int) ([]RoomView, error) {
	rooms, err := s.store.ListRooms(ctx, userID)
	if err != nil {
		return nil, s.internal("list rooms", err, "user_id", userID)
	}
	names := make(map[int]string)
	views := make([]RoomView, 0, len(rooms))
	for i := range rooms {
		views = append(views, *s.roomView(ctx, &rooms[i], names))
	}
	return views, nil
}
