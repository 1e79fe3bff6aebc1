package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"pongd/internal/broadcast"
	"pongd/internal/config"
	"pongd/internal/netwrk"
	"pongd/internal/pong"
	"pongd/internal/protocol"
)

func main() {
	if len(os.Args) == 1 {
		config.LoadConfig("")
	} else {
		config.LoadConfig(os.Args[1])
	}

	slog.SetLogLoggerLevel(slog.Level(config.Config.LogLevel))

	hub := broadcast.NewHub(slog.Default())

	engine := pong.New(pong.Options{
		Logger:      slog.Default(),
		Broadcaster: hub,
		EndGame: func(sum protocol.Summary) {
			slog.Info("match finished", "session", sum.SessionID, "players", len(sum.Players))
			// Result persistence lives elsewhere; peers still get the
			// summary on the session channel.
			hub.Broadcast(sum.SessionID, sum)
		},
		TickEvery:    time.Second / time.Duration(config.Config.SchedulerHz),
		GracePeriod:  time.Duration(config.Config.GracePeriodMs) * time.Millisecond,
		PauseTimeout: time.Duration(config.Config.PauseTimeoutSec) * time.Second,
	})
	go engine.Run()
	defer engine.Stop()

	srv := netwrk.NewServer(slog.Default(), engine.Inbox, hub)
	http.HandleFunc("/ws", srv.HandleWS)

	fmt.Println("Starting pongd on", config.Config.ListenAddr)
	err := http.ListenAndServe(config.Config.ListenAddr, nil)
	if err != nil {
		log.Fatal(err)
	}
}
