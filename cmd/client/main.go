package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pongd/internal/protocol"
)

// Headless bot client: joins a session and wiggles its paddle. Handy for
// smoke-testing a running server from two terminals.

var (
	addr    = flag.String("addr", "127.0.0.1:12345", "server address")
	session = flag.String("session", "bots", "session id to join")
	player  = flag.String("player", "bot-1", "participant id")
	create  = flag.Bool("create", false, "create the session before joining")
	start   = flag.Bool("start", false, "request match start once joined")
)

func main() {
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws", *addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatal("could not connect to server: ", err)
	}
	defer conn.Close()

	fmt.Println("Connected to", url, "as", *player)

	var lastFrame atomic.Int64

	// Network reader: print score lines, track the simulation frame so
	// inputs target frames the server has not consumed yet.
	go func() {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				log.Fatal("disconnected: ", err)
			}
			if kind == websocket.BinaryMessage {
				snap, err := protocol.DecodeSnapshot(data)
				if err != nil {
					slog.Debug("bad snapshot", "error", err)
					continue
				}
				lastFrame.Store(snap.FrameID)
				continue
			}
			msg, err := protocol.Unmarshal(data)
			if err != nil {
				slog.Debug("bad message", "error", err)
				continue
			}
			switch m := msg.Message.(type) {
			case protocol.Ack:
				fmt.Println("ack:", m.Action)
			case protocol.Summary:
				fmt.Println("game over")
				for _, p := range m.Players {
					fmt.Printf("  %s  %d  (%s)\n", p.ID, p.FinalScore, p.Outcome)
				}
			}
		}
	}()

	if *create {
		send(conn, protocol.Create{SessionID: *session, Participants: []string{*player}})
	} else {
		send(conn, protocol.Player{SessionID: *session, ParticipantID: *player, Action: protocol.ActionJoin})
	}
	if *start {
		// Give the second player a moment to join first.
		time.Sleep(2 * time.Second)
		send(conn, protocol.Control{SessionID: *session, Action: protocol.ControlStart, RequesterID: *player})
	}

	// Flip between up and down every second.
	pressed, release := protocol.KeyUp, protocol.KeyDown
	for range time.Tick(time.Second) {
		pressed, release = release, pressed
		send(conn, protocol.Input{
			SessionID:     *session,
			ParticipantID: *player,
			Frames: []protocol.InputBatch{{
				FrameID: lastFrame.Load() + 10,
				Inputs: []protocol.InputEvent{
					{Key: release, Pressed: false},
					{Key: pressed, Pressed: true},
				},
			}},
		})
	}
}

func send(conn *websocket.Conn, payload any) {
	msg, err := protocol.NewMessage(payload)
	if err != nil {
		log.Fatal(err)
	}
	b, err := protocol.Marshal(msg)
	if err != nil {
		log.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Fatal("write failed: ", err)
	}
}
