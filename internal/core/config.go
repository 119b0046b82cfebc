package core

import (
	"errors"
	"fmt"
	"time"

	"ytmdremote/internal/i18n"
)

const (
	// DefaultPlayerHost is the loopback address the desktop player listens on.
	DefaultPlayerHost = "localhost"
	// DefaultPlayerPort is the desktop player's default API port.
	DefaultPlayerPort = 26538
	// DefaultStoragePort matches the storage API's historical port.
	DefaultStoragePort = 3001
	// DefaultHistoryLimit caps the number of history entries per handle.
	DefaultHistoryLimit = 200
	// DefaultRecommendationLimit is used when no limit is requested.
	DefaultRecommendationLimit = 10
	// DefaultQueueCapacity is the observed remote queue cap.
	DefaultQueueCapacity = 50
	// DefaultVolume is assumed when the player reports 0 on first contact while unmuted.
	DefaultVolume = 75
	// DefaultNotificationTTL is how long a notification stays visible.
	DefaultNotificationTTL = 2500 * time.Millisecond
)

type Config struct {
	Player  PlayerConfig
	Storage StorageConfig
	Server  ServerConfig
	Sync    SyncConfig
	Engine  EngineConfig
	Log     LogConfig
	App     AppConfig
}

type PlayerConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	SearchCacheSize int
}

// BaseURL returns the player API root, e.g. http://localhost:26538/api/v1.
func (c PlayerConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d/api/v1", c.Host, c.Port)
}

type StorageConfig struct {
	DataDir string
	// URL points at a remote storage API; empty means the in-process file store.
	URL                 string
	HistoryLimit        int
	ProfileCacheSize    int
	WriteLimitPerMinute int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SyncConfig struct {
	PollInterval         time.Duration
	TimeSuppression      time.Duration
	VolumeSuppression    time.Duration
	QueueRefreshEvery    int
	SettingsRefreshEvery int
	ProgressInterval     time.Duration
}

type EngineConfig struct {
	QueueCapacity     int
	EvictBatchMax     int
	PollAttempts      int
	PollInterval      time.Duration
	SettleDelay       time.Duration
	DeleteSpacing     time.Duration
	PostDeleteDelay   time.Duration
	VerifyDelay       time.Duration
	RetryVerifyDelay  time.Duration
	PlayNowInsertMode InsertMode
	// KeepCurrentOnPlay preserves the playing entry when playNow trims the queue.
	KeepCurrentOnPlay bool
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language            string
	Handle              string
	NotificationTTL     time.Duration
	RecommendationLimit int
}

func DefaultConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			Host:            DefaultPlayerHost,
			Port:            DefaultPlayerPort,
			RequestTimeout:  10 * time.Second,
			SearchCacheSize: 64,
		},
		Storage: StorageConfig{
			DataDir:             "./data",
			HistoryLimit:        DefaultHistoryLimit,
			ProfileCacheSize:    128,
			WriteLimitPerMinute: 120,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultStoragePort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:         time.Second,
			TimeSuppression:      5 * time.Second,
			VolumeSuppression:    700 * time.Millisecond,
			QueueRefreshEvery:    4,
			SettingsRefreshEvery: 2,
			ProgressInterval:     time.Second,
		},
		Engine: EngineConfig{
			QueueCapacity:     DefaultQueueCapacity,
			EvictBatchMax:     40,
			PollAttempts:      10,
			PollInterval:      300 * time.Millisecond,
			SettleDelay:       500 * time.Millisecond,
			DeleteSpacing:     100 * time.Millisecond,
			PostDeleteDelay:   300 * time.Millisecond,
			VerifyDelay:       300 * time.Millisecond,
			RetryVerifyDelay:  500 * time.Millisecond,
			PlayNowInsertMode: InsertAfterCurrent,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:            i18n.DefaultLanguage,
			NotificationTTL:     DefaultNotificationTTL,
			RecommendationLimit: DefaultRecommendationLimit,
		},
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Player.Host == "" {
		return errors.New("player host is required")
	}
	if c.Player.Port <= 0 || c.Player.Port > 65535 {
		return fmt.Errorf("player port out of range: %d", c.Player.Port)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Storage.URL == "" && c.Storage.DataDir == "" {
		return errors.New("either a storage URL or a data directory is required")
	}
	if c.Storage.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.Storage.HistoryLimit)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Sync.PollInterval)
	}
	if c.Sync.QueueRefreshEvery <= 0 || c.Sync.SettingsRefreshEvery <= 0 {
		return errors.New("refresh cadences must be positive")
	}
	if c.Engine.PollAttempts <= 0 {
		return fmt.Errorf("engine poll attempts must be positive, got %d", c.Engine.PollAttempts)
	}
	if c.Engine.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Engine.QueueCapacity)
	}
	return nil
}
