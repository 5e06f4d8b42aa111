package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"roomcast/internal/chat"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// recorder is a Subscriber that keeps every frame it is handed.
type recorder struct {
	userID int

	mu     sync.Mutex
	events []chat.Envelope
}

func (r *recorder) UserID() int { return r.userID }

func (r *recorder) Deliver(frame []byte) bool {
	var env chat.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return true
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

func (r *recorder) named(event string) []chat.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Envelope
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var errNoSuchUser = errors.New("no such user")

type mapDirectory map[int]string

func (d mapDirectory) LookupUsername(_ context.Context, userID int) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", errNoSuchUser
	}
	return name, nil
}

// steppingClock advances one millisecond on every reading so stored
// messages get distinct, increasing timestamps.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type fixture struct {
	store   *chat.MemoryStore
	hub     *chat.Hub
	service *chat.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := chat.NewMemoryStore()
	hub := chat.NewHub(log)
	directory := mapDirectory{1: "alice", 2: "bob", 3: "carol", 4: "dave"}
	clock := &steppingClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	service := chat.NewService(store, directory, hub, chat.NewRateLimiter(5, 5*time.Second), nil, log).
		WithClock(clock.Now)
	return &fixture{store: store, hub: hub, service: service}
}

func (f *fixture) connect(t *testing.T, userID int) (*chat.Session, *recorder) {
	t.Helper()
	rec := &recorder{userID: userID}
	sess := chat.NewSession(userID, rec)
	require.NoError(t, f.service.Register(context.Background(), sess))
	return sess, rec
}

func (f *fixture) privateRoom(t *testing.T, owner *chat.Session, other int) string {
	t.Helper()
	res, err := f.service.CreateRoom(context.Background(), owner, chat.CreateRoomRequest{
		ParticipantIDs: []int{other},
		Type:           chat.RoomPrivate,
	})
	require.NoError(t, err)
	return res.Room.ID
}

func (f *fixture) groupRoom(t *testing.T, owner *chat.Session, others ...int) string {
	t.Helper()
	res, err := f.service.CreateRoom(context.Background(), owner, chat.CreateRoomRequest{
		ParticipantIDs: others,
		Type:           chat.RoomGroup,
	})
	require.NoError(t, err)
	return res.Room.ID
}

func (f *fixture) messages(t *testing.T, roomID string) []chat.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), roomID, time.Now().AddDate(10, 0, 0), 1000)
	require.NoError(t, err)
	return msgs
}

func decode[T any](t *testing.T, env chat.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
