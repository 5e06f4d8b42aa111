package chat

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStore is an in-process Store for local runs and tests. It enforces
// the same uniqueness constraints as the Postgres schema.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	private  map[string]string // participant key -> room id
	messages map[string]*Message
	notices  map[string]string // room id + notice key -> message id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*Room),
		private:  make(map[string]string),
		messages: make(map[string]*Message),
		notices:  make(map[string]string),
	}
}

func (s *MemoryStore) FindRoom(_ context.Context, id string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRoom(r), nil
}

func (s *MemoryStore) FindPrivateRoom(_ context.Context, participants []int) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.private[ParticipantKey(participants)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRoom(s.rooms[id]), nil
}

func (s *MemoryStore) InsertRoom(_ context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists {
		return ErrDuplicateEntry
	}
	if room.Type == RoomPrivate {
		key := ParticipantKey(room.Participants)
		if _, exists := s.private[key]; exists {
			return ErrDuplicateEntry
		}
		s.private[key] = room.ID
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (s *MemoryStore) TouchRoom(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return ErrRecordNotFound
	}
	r.LastActivityAt = at
	return nil
}

func (s *MemoryStore) ListRooms(_ context.Context, userID int) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Room
	for _, r := range s.rooms {
		if r.HasParticipant(userID) {
			out = append(out, *cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return ErrRecordNotFound
	}
	if _, exists := s.messages[msg.ID]; exists {
		return ErrDuplicateEntry
	}
	if msg.NoticeKey != "" {
		key := msg.RoomID + "/" + msg.NoticeKey
		if _, exists := s.notices[key]; exists {
			return ErrDuplicateEntry
		}
		s.notices[key] = msg.ID
	}
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (s *MemoryStore) FindMessage(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneMessage(m), nil
}

func (s *MemoryStore) FindNotice(_ context.Context, roomID, noticeKey string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.notices[roomID+"/"+noticeKey]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneMessage(s.messages[id]), nil
}

func (s *MemoryStore) AddReceipt(_ context.Context, messageID string, kind ReceiptKind, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return ErrRecordNotFound
	}
	switch kind {
	case ReceiptDelivered:
		m.DeliveredTo = addToSet(m.DeliveredTo, userID)
	case ReceiptSeen:
		m.SeenBy = addToSet(m.SeenBy, userID)
	}
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, roomID string, before time.Time, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.messages {
		if m.RoomID == roomID && m.CreatedAt.Before(before) {
			out = append(out, *cloneMessage(m))
		}
	}
	// newest first, like the Postgres query
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Count returns the number of stored rooms and messages.
func (s *MemoryStore) Count() (rooms, messages int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms), len(s.messages)
}

func addToSet(set []int, id int) []int {
	if lo.Contains(set, id) {
		return set
	}
	set = append(set, id)
	slices.Sort(set)
	return set
}

func cloneRoom(r *Room) *Room {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	return &c
}

func cloneMessage(m *Message) *Message {
	c := *m
	c.DeliveredTo = slices.Clone(m.DeliveredTo)
	c.SeenBy = slices.Clone(m.SeenBy)
	if m.SenderID != nil {
		id := *m.SenderID
		c.SenderID = &id
	}
	return &c
}
