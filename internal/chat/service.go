package chat

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"roomcast/internal/metrics"

	"github.com/go-playground/validator/v10"
)

// Outbound event names.
const (
	EventNewRoom          = "new-room"
	EventReceiveMessage   = "receive-message"
	EventMessageDelivered = "message-delivered"
	EventMessageSeen      = "message-seen"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventError            = "error"
	EventWarning          = "warning"
	EventAck              = "ack"
)

// ErrDegraded marks a session that works with reduced information.
var ErrDegraded = errors.New("degraded session")

// Session is the ephemeral state of one authenticated connection.
type Session struct {
	UserID   int
	Username string
	Conn     Subscriber

	mu         sync.Mutex
	rooms      map[string]struct{}
	registered bool
}

func NewSession(userID int, conn Subscriber) *Session {
	return &Session{
		UserID:   userID,
		Username: UnknownUser,
		Conn:     conn,
		rooms:    make(map[string]struct{}),
	}
}

func (s *Session) join(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

func (s *Session) leave(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Session) Joined(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Service implements the room, message, receipt and typing operations. It
// has no knowledge of the transport; connections reach it through Session.
type Service struct {
	store     Store
	directory Directory
	hub       *Hub
	limiter   *RateLimiter
	metrics   *metrics.Metrics
	validate  *validator.Validate
	log       *slog.Logger
	now       func() time.Time
	pageSize  int
}

func NewService(store Store, directory Directory, hub *Hub, limiter *RateLimiter, m *metrics.Metrics, log *slog.Logger) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		store:     store,
		directory: directory,
		hub:       hub,
		limiter:   limiter,
		metrics:   m,
		validate:  newValidator(),
		log:       log,
		now:       time.Now,
		pageSize:  DefaultHistoryLimit,
	}
}

// WithClock replaces the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPageSize sets the history page returned when no limit is asked for.
func (s *Service) WithPageSize(n int) *Service {
	if n > 0 {
		s.pageSize = min(n, MaxHistoryLimit)
	}
	return s
}

// Register binds an authenticated session to its display name and personal
// channel. A failed name lookup degrades the session instead of failing it;
// the returned error is then an ErrDegraded warning for the connection.
// Calling it again for the same session only re-confirms the subscription.
func (s *Service) Register(ctx context.Context, sess *Session) error {
	var warning error
	name, err := s.directory.LookupUsername(ctx, sess.UserID)
	if err != nil || name == "" {
		s.log.Warn("Display name lookup failed", "user_id", sess.UserID, "error", err)
		name = UnknownUser
		warning = newError(ErrDegraded, "User info could not be loaded. Some features may not work properly.")
	}
	sess.Username = name

	if s.hub.Subscribe(UserChannel(sess.UserID), sess.Conn) {
		s.log.Debug("Joined personal channel", "user_id", sess.UserID)
	}
	sess.mu.Lock()
	if !sess.registered {
		sess.registered = true
		s.metrics.ConnectionsActive.Inc()
	}
	sess.mu.Unlock()
	return warning
}

// Disconnect drops every subscription of the session. Writes already in
// flight finish and reach the remaining subscribers.
func (s *Service) Disconnect(sess *Session) {
	sess.mu.Lock()
	if sess.registered {
		sess.registered = false
		s.metrics.ConnectionsActive.Dec()
	}
	sess.rooms = make(map[string]struct{})
	sess.mu.Unlock()
	s.hub.UnsubscribeAll(sess.Conn)
	s.log.Debug("Session closed", "user_id", sess.UserID)
}

// resolveName never fails; unknown users get UnknownUser.
func (s *Service) resolveName(ctx context.Context, userID int, cache map[int]string) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	name, err := s.directory.LookupUsername(ctx, userID)
	if err != nil || name == "" {
		s.log.Debug("Falling back to unknown user name", "user_id", userID, "error", err)
		name = UnknownUser
	}
	if cache != nil {
		cache[userID] = name
	}
	return name
}

func (s *Service) roomView(ctx context.Context, room *Room, cache map[int]string) *RoomView {
	participants := make([]UserRef, 0, len(room.Participants))
	for _, id := range room.Participants {
		participants = append(participants, UserRef{ID: id, Username: s.resolveName(ctx, id, cache)})
	}
	return &RoomView{
		ID:             room.ID,
		Type:           room.Type,
		Name:           room.Name,
		Participants:   participants,
		CreatorID:      room.CreatorID,
		LastActivityAt: room.LastActivityAt,
		CreatedAt:      room.CreatedAt,
	}
}

func (s *Service) messageView(ctx context.Context, msg *Message, cache map[int]string) *MessageView {
	view := &MessageView{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		Content:     msg.Content,
		DeliveredTo: nonNil(msg.DeliveredTo),
		SeenBy:      nonNil(msg.SeenBy),
		System:      msg.System,
		CreatedAt:   msg.CreatedAt,
	}
	if msg.SenderID != nil {
		view.Sender = &UserRef{ID: *msg.SenderID, Username: s.resolveName(ctx, *msg.SenderID, cache)}
	}
	return view
}

// loadMemberRoom fetches a room and checks the user participates in it.
func (s *Service) loadMemberRoom(ctx context.Context, roomID string, userID int) (*Room, error) {
	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "Room not found")
		}
		return nil, s.internal("find room", err, "room_id", roomID)
	}
	if !room.HasParticipant(userID) {
		return nil, newError(ErrAuthorization, "Unauthorized room access")
	}
	return room, nil
}

// internal logs the cause and returns the generic internal error.
func (s *Service) internal(op string, err error, attrs ...any) error {
	s.log.Error("Store operation failed", append([]any{"op", op, "error", err}, attrs...)...)
	return newError(ErrInternal, "Internal server error")
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
