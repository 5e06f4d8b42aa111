package chat

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
)

const (
	MinParticipants  = 2
	MaxParticipants  = 256
	MaxContentLength = 1000

	DefaultGroupName = "Group Chat"
	UnknownUser      = "Unknown User"
)

type Room struct {
	ID             string    `json:"id"`
	Type           RoomType  `json:"type"`
	Name           string    `json:"name,omitempty"`
	Participants   []int     `json:"participants"` // canonical: sorted, deduplicated
	CreatorID      int       `json:"creator_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (r *Room) HasParticipant(userID int) bool {
	_, found := slices.BinarySearch(r.Participants, userID)
	return found
}

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room"`
	SenderID    *int      `json:"sender_id"` // nil for system messages
	Content     string    `json:"content"`
	DeliveredTo []int     `json:"delivered_to"`
	SeenBy      []int     `json:"seen_by"`
	System      bool      `json:"system"`
	NoticeKey   string    `json:"-"` // unique per room for system notices
	CreatedAt   time.Time `json:"created_at"`
}

type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptSeen      ReceiptKind = "seen"
)

// Canonicalize returns the sorted, deduplicated form of a participant set.
func Canonicalize(ids []int) []int {
	out := lo.Uniq(ids)
	slices.Sort(out)
	return out
}

// ParticipantKey is the comparable string form of a canonical participant set.
func ParticipantKey(canonical []int) string {
	return strings.Join(lo.Map(canonical, func(id int, _ int) string {
		return strconv.Itoa(id)
	}), ",")
}

func ParseParticipantKey(key string) ([]int, error) {
	if key == "" {
		return nil, nil
	}
	parts := strings.Split(key, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ---------------------------------------------
// ⚡ Outbound Views (participants and senders resolved)
// ---------------------------------------------

type UserRef struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type RoomView struct {
	ID             string    `json:"id"`
	Type           RoomType  `json:"type"`
	Name           string    `json:"name,omitempty"`
	Participants   []UserRef `json:"participants"`
	CreatorID      int       `json:"creator_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageView struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room"`
	Sender      *UserRef  `json:"sender"`
	Content     string    `json:"content"`
	DeliveredTo []int     `json:"delivered_to"`
	SeenBy      []int     `json:"seen_by"`
	System      bool      `json:"system"`
	CreatedAt   time.Time `json:"created_at"`

	// Only set on history reads, relative to the reader.
	Delivered *bool `json:"delivered,omitempty"`
	Seen      *bool `json:"seen,omitempty"`
}

// ---------------------------------------------
// 📨 Inbound Requests
// ---------------------------------------------

type CreateRoomRequest struct {
	ParticipantIDs []int    `json:"participantIds" validate:"required,min=1,max=256"`
	Type           RoomType `json:"type" validate:"required,oneof=private group"`
	Name           string   `json:"name" validate:"max=100"`
}

type RoomRequest struct {
	RoomID string `json:"roomId" validate:"required,uuid"`
}

type SendMessageRequest struct {
	RoomID  string `json:"roomId" validate:"required,uuid"`
	Content string `json:"content" validate:"required,max=1000"`
}

type ReceiptRequest struct {
	RoomID     string   `json:"roomId" validate:"required,uuid"`
	MessageIDs []string `json:"messageIds" validate:"required,min=1,dive,required,uuid"`
}

type CreateRoomResult struct {
	Success bool      `json:"success"`
	Room    *RoomView `json:"room"`
	Message string    `json:"message"`
	Existed bool      `json:"-"`
}

type ReceiptUpdate struct {
	MessageIDs []string `json:"messageIds"`
	UserID     int      `json:"userId"`
}

type TypingNotice struct {
	UserID   int    `json:"userId"`
	Username string `json:"username,omitempty"`
}
