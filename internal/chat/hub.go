package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
)

// Subscriber is one live connection as seen by the Hub.
type Subscriber interface {
	UserID() int
	// Deliver queues a frame without blocking. It returns false when the
	// connection cannot keep up.
	Deliver(frame []byte) bool
}

// Relay carries broadcasts between processes. When the Hub has no relay,
// broadcasts are delivered locally right away.
type Relay interface {
	Publish(ctx context.Context, b Broadcast) error
}

// Broadcast is one outbound event addressed to a channel.
type Broadcast struct {
	Channel    string          `json:"channel"`
	ExceptUser int             `json:"except_user,omitempty"`
	Frame      json.RawMessage `json:"frame"`
}

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func UserChannel(userID int) string { return "user:" + strconv.Itoa(userID) }

func RoomChannel(roomID string) string { return "room:" + roomID }

// Hub maintains the channel subscription table and fans broadcasts out to
// subscribers. The table lock is never held while calling the store.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[Subscriber]struct{}
	joined   map[Subscriber]map[string]struct{} // reverse index for disconnect teardown

	relay  Relay
	onSlow func(Subscriber)
	log    *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[Subscriber]struct{}),
		joined:   make(map[Subscriber]map[string]struct{}),
		log:      log,
	}
}

func (h *Hub) WithRelay(r Relay) *Hub {
	h.relay = r
	return h
}

// OnSlowConsumer registers the callback used when a subscriber's buffer is full.
func (h *Hub) OnSlowConsumer(fn func(Subscriber)) {
	h.onSlow = fn
}

// Subscribe reports whether the subscription is new.
func (h *Hub) Subscribe(channel string, s Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.channels[channel] = subs
	}
	if _, exists := subs[s]; exists {
		return false
	}
	subs[s] = struct{}{}

	if h.joined[s] == nil {
		h.joined[s] = make(map[string]struct{})
	}
	h.joined[s][channel] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(channel string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(channel, s)
}

func (h *Hub) unsubscribeLocked(channel string, s Subscriber) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	if chans, ok := h.joined[s]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(h.joined, s)
		}
	}
}

// UnsubscribeAll tears down every subscription of a disconnecting subscriber.
func (h *Hub) UnsubscribeAll(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range h.joined[s] {
		h.unsubscribeLocked(channel, s)
	}
}

func (h *Hub) IsSubscribed(channel string, s Subscriber) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][s]
	return ok
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Emit encodes an event and broadcasts it to a channel.
func (h *Hub) Emit(ctx context.Context, channel, event string, data any) error {
	return h.emit(ctx, channel, 0, event, data)
}

// EmitExcept skips every connection of exceptUser.
func (h *Hub) EmitExcept(ctx context.Context, channel string, exceptUser int, event string, data any) error {
	return h.emit(ctx, channel, exceptUser, event, data)
}

func (h *Hub) emit(ctx context.Context, channel string, exceptUser int, event string, data any) error {
	frame, err := EncodeFrame(event, "", data)
	if err != nil {
		return err
	}
	b := Broadcast{Channel: channel, ExceptUser: exceptUser, Frame: frame}
	if h.relay != nil {
		if err := h.relay.Publish(ctx, b); err != nil {
			return fmt.Errorf("relay publish: %w", err)
		}
		return nil
	}
	h.Deliver(b)
	return nil
}

// Deliver fans a broadcast out to local subscribers.
func (h *Hub) Deliver(b Broadcast) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.channels[b.Channel]))
	for s := range h.channels[b.Channel] {
		if b.ExceptUser != 0 && s.UserID() == b.ExceptUser {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.Deliver(b.Frame) {
			h.log.Warn("Dropping slow consumer", "channel", b.Channel, "user_id", s.UserID())
			h.UnsubscribeAll(s)
			if h.onSlow != nil {
				h.onSlow(s)
			}
		}
	}
}

func EncodeFrame(event, ack string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Ack: ack, Data: raw})
}
