package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"roomcast/internal/chat"
	"roomcast/internal/user"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

var (
	wsURL     = flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	pairCount = flag.Int("pairs", 50, "number of user pairs (start small, the database may choke)")
	msgCount  = flag.Int("messages", 20, "messages per user")
	pace      = flag.Duration("pace", 1100*time.Millisecond, "delay between sends; the server allows 5 per 5s")
	firstID   = flag.Int("first-id", 1000, "user id of the first generated user")
)

type stats struct {
	sent, failed, received atomic.Int64
}

func main() {
	flag.Parse()
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	logger := logs.GetLoggerFromString(level)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(2)
	}
	// Tokens are signed with the server's secret, the same way the account
	// service issues them.
	issuer := user.NewService(nil, secret)

	logger.Info("Starting stress test", "users", *pairCount*2, "messages_per_user", *msgCount)
	start := time.Now()
	var (
		wg sync.WaitGroup
		st stats
	)
	// Pairs: user 0 talks to user 1, user 2 talks to user 3...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			if err := runPair(issuer, pairID, &st, logger); err != nil {
				logger.Error("Pair failed", "pair", pairID, "error", err)
			}
		}(i)
	}
	wg.Wait()

	logger.Info("Load test complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"sent", st.sent.Load(),
		"failed", st.failed.Load(),
		"received", st.received.Load())
}

func runPair(issuer *user.Service, pairID int, st *stats, logger *slog.Logger) error {
	idA := *firstID + pairID*2
	idB := idA + 1

	connA, err := connect(issuer, idA)
	if err != nil {
		return err
	}
	defer connA.Close()
	connB, err := connect(issuer, idB)
	if err != nil {
		return err
	}
	defer connB.Close()

	roomID, err := createRoom(connA, idB)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go spamChat(&wg, connA, roomID, idA, st, logger)
	go spamChat(&wg, connB, roomID, idB, st, logger)
	wg.Wait()
	return nil
}

func connect(issuer *user.Service, userID int) (*websocket.Conn, error) {
	token, err := issuer.IssueToken(userID, fmt.Sprintf("load_%d", userID), time.Hour)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(*wsURL+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, fmt.Errorf("ws connect user %d: %w", userID, err)
	}
	return conn, nil
}

// createRoom asks for the private room with peer and waits for the ack.
func createRoom(conn *websocket.Conn, peer int) (string, error) {
	if err := writeEvent(conn, chat.InCreateRoom, "create", chat.CreateRoomRequest{
		ParticipantIDs: []int{peer},
		Type:           chat.RoomPrivate,
	}); err != nil {
		return "", err
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return "", fmt.Errorf("waiting for create-room ack: %w", err)
		}
		if env.Event != chat.EventAck || env.Ack != "create" {
			continue
		}
		var res chat.CreateRoomResult
		if err := json.Unmarshal(env.Data, &res); err != nil {
			return "", err
		}
		if !res.Success || res.Room == nil {
			return "", errors.New("create-room refused: " + string(env.Data))
		}
		return res.Room.ID, nil
	}
}

func spamChat(wg *sync.WaitGroup, conn *websocket.Conn, roomID string, userID int, st *stats, logger *slog.Logger) {
	defer wg.Done()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env chat.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Event {
			case chat.EventReceiveMessage:
				st.received.Add(1)
			case chat.EventError:
				st.failed.Add(1)
				logger.Debug("Server reported error", "user_id", userID, "data", string(env.Data))
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		err := writeEvent(conn, chat.InSendMessage, "", chat.SendMessageRequest{
			RoomID:  roomID,
			Content: fmt.Sprintf("LoadTest Msg %d from %d", i, userID),
		})
		if err != nil {
			logger.Warn("Send failed", "user_id", userID, "error", err)
			break
		}
		st.sent.Add(1)
		time.Sleep(*pace)
	}
	// let the last broadcasts arrive before closing
	time.Sleep(time.Second)
	conn.Close()
	<-done
	logger.Debug("User finished", "user_id", userID, "messages", *msgCount)
}

func writeEvent(conn *websocket.Conn, event, ack string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Envelope{Event: event, Ack: ack, Data: raw})
}
