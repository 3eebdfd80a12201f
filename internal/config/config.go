package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	ServerPort    int
	DatabasePath  string
	ScreenshotDir string
	TimelinePath  string
	TimelineFmt   string

	WindowPollInterval    time.Duration
	SelectionPollInterval time.Duration
	SelectionMinGap       time.Duration
	ScreenshotMinInterval time.Duration
	FlushInterval         time.Duration
	ShutdownGrace         time.Duration

	ExportSchedule string
	RetainEvents   int
	LogLevel       string
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	retain, err := getEnvInt("RETAIN_EVENTS", 1000)
	if err != nil {
		return nil, err
	}

	windowPoll, err := getEnvMillis("WINDOW_POLL_MS", 2000)
	if err != nil {
		return nil, err
	}
	selectionPoll, err := getEnvMillis("SELECTION_POLL_MS", 1000)
	if err != nil {
		return nil, err
	}
	selectionGap, err := getEnvMillis("SELECTION_MIN_GAP_MS", 3000)
	if err != nil {
		return nil, err
	}
	shotInterval, err := getEnvMillis("SCREENSHOT_MIN_INTERVAL_MS", 500)
	if err != nil {
		return nil, err
	}
	flushInterval, err := getEnvMillis("FLUSH_INTERVAL_MS", 5000)
	if err != nil {
		return nil, err
	}
	shutdownGrace, err := getEnvMillis("SHUTDOWN_GRACE_MS", 2000)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:            port,
		DatabasePath:          getEnv("DATABASE_PATH", "./timeline.db"),
		ScreenshotDir:         getEnv("SCREENSHOT_DIR", "./screenshots"),
		TimelinePath:          getEnv("TIMELINE_PATH", "./timeline.json"),
		TimelineFmt:           getEnv("TIMELINE_FORMAT", "json"),
		WindowPollInterval:    windowPoll,
		SelectionPollInterval: selectionPoll,
		SelectionMinGap:       selectionGap,
		ScreenshotMinInterval: shotInterval,
		FlushInterval:         flushInterval,
		ShutdownGrace:         shutdownGrace,
		ExportSchedule:        getEnv("EXPORT_CRON", "@every 5m"),
		RetainEvents:          retain,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		return strconv.Atoi(value)
	}
	return fallback, nil
}

func getEnvMillis(key string, fallback int) (time.Duration, error) {
	ms, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
