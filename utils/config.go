// File: utils/config.go
package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds all configurable runtime parameters.
type Config struct {
	// Actors
	AskTimeout      time.Duration `json:"askTimeout"`      // How long a ctx.send waits for its reply before the asker fails
	ShutdownTimeout time.Duration `json:"shutdownTimeout"` // How long the engine waits for actors to stop on shutdown
	MaxNotifyDelay  time.Duration `json:"maxNotifyDelay"`  // Upper bound for ctx.notify_later delays
	MailboxSize     int           `json:"mailboxSize"`     // Buffered capacity of each script actor's mailbox

	// Scripts
	LuaPath        string        `json:"luaPath"`        // package.path for require, empty keeps the interpreter default
	WatchScripts   bool          `json:"watchScripts"`   // Reload phase bodies when their files change
	ReloadDebounce time.Duration `json:"reloadDebounce"` // Quiet period before a changed file is reloaded

	// Front-end
	ListenAddr     string        `json:"listenAddr"`     // HTTP and websocket listen address
	RequestTimeout time.Duration `json:"requestTimeout"` // Per-request ask timeout for the HTTP front-end
}

// DefaultConfig returns a Config struct with default values.
func DefaultConfig() Config {
	return Config{
		// Actors
		AskTimeout:      30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxNotifyDelay:  24 * time.Hour,
		MailboxSize:     1024,

		// Scripts
		LuaPath:        "",
		WatchScripts:   false,
		ReloadDebounce: 100 * time.Millisecond,

		// Front-end
		ListenAddr:     ":3001",
		RequestTimeout: 10 * time.Second,
	}
}

// fileConfig mirrors Config with durations spelled as strings ("1.5s", "250ms").
type fileConfig struct {
	AskTimeout      *string `json:"askTimeout"`
	ShutdownTimeout *string `json:"shutdownTimeout"`
	MaxNotifyDelay  *string `json:"maxNotifyDelay"`
	MailboxSize     *int    `json:"mailboxSize"`
	LuaPath         *string `json:"luaPath"`
	WatchScripts    *bool   `json:"watchScripts"`
	ReloadDebounce  *string `json:"reloadDebounce"`
	ListenAddr      *string `json:"listenAddr"`
	RequestTimeout  *string `json:"requestTimeout"`
}

// LoadConfigFromFile reads a JSON config file on top of DefaultConfig.
// Keys missing from the file keep their default value.
func LoadConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := cfg.apply(data); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) apply(data []byte) error {
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return err
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"askTimeout", fc.AskTimeout, &c.AskTimeout},
		{"shutdownTimeout", fc.ShutdownTimeout, &c.ShutdownTimeout},
		{"maxNotifyDelay", fc.MaxNotifyDelay, &c.MaxNotifyDelay},
		{"reloadDebounce", fc.ReloadDebounce, &c.ReloadDebounce},
		{"requestTimeout", fc.RequestTimeout, &c.RequestTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if fc.MailboxSize != nil {
		c.MailboxSize = *fc.MailboxSize
	}
	if fc.LuaPath != nil {
		c.LuaPath = *fc.LuaPath
	}
	if fc.WatchScripts != nil {
		c.WatchScripts = *fc.WatchScripts
	}
	if fc.ListenAddr != nil {
		c.ListenAddr = *fc.ListenAddr
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.AskTimeout < 0 || c.ShutdownTimeout < 0 || c.RequestTimeout < 0 || c.ReloadDebounce < 0 {
		return fmt.Errorf("config: timeouts must not be negative")
	}
	if c.MaxNotifyDelay <= 0 {
		return fmt.Errorf("config: maxNotifyDelay must be positive, got %v", c.MaxNotifyDelay)
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("config: mailboxSize must be positive, got %d", c.MailboxSize)
	}
	return nil
}
