package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string // listen address, host optional
	DBPath       string // sqlite file holding the group mirror
	WriteTimeout int    // seconds
	SendQueue    int    // per-session outbound queue size
	MetricsAddr  string // empty disables the /metrics listener
	LogLevel     string
	LogPretty    bool
}

func Load() *Config {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:         ":12345",
		DBPath:       "chatapp.db",
		WriteTimeout: 30,
		SendQueue:    64,
		LogLevel:     "info",
	}

	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if dbPath := os.Getenv("CHAT_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if timeoutStr := os.Getenv("CHAT_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if queueStr := os.Getenv("CHAT_SEND_QUEUE"); queueStr != "" {
		if queue, err := strconv.Atoi(queueStr); err == nil && queue > 0 {
			cfg.SendQueue = queue
		}
	}

	if addr := os.Getenv("CHAT_METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}

	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if pretty := os.Getenv("CHAT_LOG_PRETTY"); pretty == "1" || pretty == "true" {
		cfg.LogPretty = true
	}

	return cfg
}
