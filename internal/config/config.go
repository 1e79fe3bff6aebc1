package config

import (
	"encoding/json"
	"log/slog"
	"os"
)

var Config Configuration

type Configuration struct {
	LogLevel        int    `json:"logLevel"`
	ListenAddr      string `json:"listenAddr"`
	SchedulerHz     int    `json:"schedulerHz"`
	GracePeriodMs   int    `json:"gracePeriodMs"`
	PauseTimeoutSec int    `json:"pauseTimeoutSec"`
}

func defaults() Configuration {
	return Configuration{
		LogLevel:        int(slog.LevelInfo),
		ListenAddr:      "127.0.0.1:12345",
		SchedulerHz:     120,
		GracePeriodMs:   3000,
		PauseTimeoutSec: 300,
	}
}

func LoadConfig(path string) {
	c := defaults()

	if path == "" {
		path = "config.json"
	}
	cf, err := os.ReadFile(path)
	if err != nil {
		slog.Info("failed to open config at path provided, using default config instead")
		Config = c
		return
	}

	err = json.Unmarshal(cf, &c)
	if err != nil {
		slog.Info("failed to read configuration, using default config instead...", slog.Any("error", err))
		c = defaults()
	}

	Config = c
}
