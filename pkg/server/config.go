package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server   ServerSection   `toml:"server"`
	Limits   LimitsSection   `toml:"limits"`
	Reclaim  ReclaimSection  `toml:"reclaim"`
	Watchdog WatchdogSection `toml:"watchdog"`
}

type ServerSection struct {
	TCPPort        int      `toml:"tcp_port"`
	HTTPPort       int      `toml:"http_port"`
	MetricsPort    int      `toml:"metrics_port"`
	DatabasePath   string   `toml:"database_path"`
	RequireAccount bool     `toml:"require_accounts"`
	RobotCookie    string   `toml:"robot_cookie"`
	DebugUsers     []string `toml:"debug_users"`
}

type LimitsSection struct {
	MaxConnections       int `toml:"max_connections"`
	MaxChannelsPerClient int `toml:"max_channels_per_client"`
	MaxGamesPerClient    int `toml:"max_games_per_client"`
	MaxNicknameLength    int `toml:"max_nickname_length"`
}

type ReclaimSection struct {
	PasswordTimeoutSeconds        int `toml:"password_timeout_seconds"`
	SameOriginTimeoutSeconds      int `toml:"same_origin_timeout_seconds"`
	DifferentOriginTimeoutSeconds int `toml:"different_origin_timeout_seconds"`
}

type WatchdogSection struct {
	IntervalSeconds             int `toml:"interval_seconds"`
	TurnInactivitySeconds       int `toml:"turn_inactivity_seconds"`
	TradeOfferInactivitySeconds int `toml:"trade_offer_inactivity_seconds"`
	DiscardInactivitySeconds    int `toml:"discard_inactivity_seconds"`
	ResetVoteTimeoutSeconds     int `toml:"reset_vote_timeout_seconds"`
	PingIntervalSeconds         int `toml:"ping_interval_seconds"`
	VersionGuessMillis          int `toml:"version_guess_ms"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			TCPPort:      8880,
			HTTPPort:     8080,
			MetricsPort:  9090,
			DatabasePath: "", // empty = no user store, auth disabled
			RobotCookie:  "", // empty = generated at startup
		},
		Limits: LimitsSection{
			MaxConnections:       500,
			MaxChannelsPerClient: 2,
			MaxGamesPerClient:    5,
			MaxNicknameLength:    20,
		},
		Reclaim: ReclaimSection{
			PasswordTimeoutSeconds:        15,
			SameOriginTimeoutSeconds:      30,
			DifferentOriginTimeoutSeconds: 96,
		},
		Watchdog: WatchdogSection{
			IntervalSeconds:             5,
			TurnInactivitySeconds:       90,
			TradeOfferInactivitySeconds: 150,
			DiscardInactivitySeconds:    30,
			ResetVoteTimeoutSeconds:     30,
			PingIntervalSeconds:         60,
			VersionGuessMillis:          1200,
		},
	}
}

// ServerConfig is the runtime configuration derived from TOMLConfig.
type ServerConfig struct {
	TCPPort        int
	HTTPPort       int
	MetricsPort    int
	DatabasePath   string
	RequireAccount bool
	RobotCookie    string
	DebugUsers     []string

	MaxConnections       int
	MaxChannelsPerClient int
	MaxGamesPerClient    int
	MaxNicknameLength    int

	// Reclaim timeouts, measured from the liveness probe to the old
	// connection. Which tier applies depends on the claimant's password
	// and network origin.
	ReclaimPasswordTimeout        time.Duration
	ReclaimSameOriginTimeout      time.Duration
	ReclaimDifferentOriginTimeout time.Duration

	WatchdogInterval     time.Duration
	TurnInactivity       time.Duration
	TradeOfferInactivity time.Duration
	DiscardInactivity    time.Duration
	ResetVoteTimeout     time.Duration
	PingInterval         time.Duration
	VersionGuessTimeout  time.Duration
}

// Runtime converts the file representation into the runtime config.
func (c TOMLConfig) Runtime() ServerConfig {
	return ServerConfig{
		TCPPort:        c.Server.TCPPort,
		HTTPPort:       c.Server.HTTPPort,
		MetricsPort:    c.Server.MetricsPort,
		DatabasePath:   c.Server.DatabasePath,
		RequireAccount: c.Server.RequireAccount,
		RobotCookie:    c.Server.RobotCookie,
		DebugUsers:     c.Server.DebugUsers,

		MaxConnections:       c.Limits.MaxConnections,
		MaxChannelsPerClient: c.Limits.MaxChannelsPerClient,
		MaxGamesPerClient:    c.Limits.MaxGamesPerClient,
		MaxNicknameLength:    c.Limits.MaxNicknameLength,

		ReclaimPasswordTimeout:        time.Duration(c.Reclaim.PasswordTimeoutSeconds) * time.Second,
		ReclaimSameOriginTimeout:      time.Duration(c.Reclaim.SameOriginTimeoutSeconds) * time.Second,
		ReclaimDifferentOriginTimeout: time.Duration(c.Reclaim.DifferentOriginTimeoutSeconds) * time.Second,

		WatchdogInterval:     time.Duration(c.Watchdog.IntervalSeconds) * time.Second,
		TurnInactivity:       time.Duration(c.Watchdog.TurnInactivitySeconds) * time.Second,
		TradeOfferInactivity: time.Duration(c.Watchdog.TradeOfferInactivitySeconds) * time.Second,
		DiscardInactivity:    time.Duration(c.Watchdog.DiscardInactivitySeconds) * time.Second,
		ResetVoteTimeout:     time.Duration(c.Watchdog.ResetVoteTimeoutSeconds) * time.Second,
		PingInterval:         time.Duration(c.Watchdog.PingIntervalSeconds) * time.Second,
		VersionGuessTimeout:  time.Duration(c.Watchdog.VersionGuessMillis) * time.Millisecond,
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	// Load from file over defaults, so new keys get sane values
	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables follow the pattern: GAMETABLE_SECTION_KEY
// Example: GAMETABLE_SERVER_TCP_PORT=8881
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	envInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			}
		}
	}
	envString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	envBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	envInt("GAMETABLE_SERVER_TCP_PORT", &config.Server.TCPPort)
	envInt("GAMETABLE_SERVER_HTTP_PORT", &config.Server.HTTPPort)
	envInt("GAMETABLE_SERVER_METRICS_PORT", &config.Server.MetricsPort)
	envString("GAMETABLE_SERVER_DATABASE_PATH", &config.Server.DatabasePath)
	envBool("GAMETABLE_SERVER_REQUIRE_ACCOUNTS", &config.Server.RequireAccount)
	envString("GAMETABLE_SERVER_ROBOT_COOKIE", &config.Server.RobotCookie)
	if val := os.Getenv("GAMETABLE_SERVER_DEBUG_USERS"); val != "" {
		config.Server.DebugUsers = strings.Split(val, ":")
	}

	envInt("GAMETABLE_LIMITS_MAX_CONNECTIONS", &config.Limits.MaxConnections)
	envInt("GAMETABLE_LIMITS_MAX_CHANNELS_PER_CLIENT", &config.Limits.MaxChannelsPerClient)
	envInt("GAMETABLE_LIMITS_MAX_GAMES_PER_CLIENT", &config.Limits.MaxGamesPerClient)
	envInt("GAMETABLE_LIMITS_MAX_NICKNAME_LENGTH", &config.Limits.MaxNicknameLength)

	envInt("GAMETABLE_RECLAIM_PASSWORD_TIMEOUT_SECONDS", &config.Reclaim.PasswordTimeoutSeconds)
	envInt("GAMETABLE_RECLAIM_SAME_ORIGIN_TIMEOUT_SECONDS", &config.Reclaim.SameOriginTimeoutSeconds)
	envInt("GAMETABLE_RECLAIM_DIFFERENT_ORIGIN_TIMEOUT_SECONDS", &config.Reclaim.DifferentOriginTimeoutSeconds)

	envInt("GAMETABLE_WATCHDOG_INTERVAL_SECONDS", &config.Watchdog.IntervalSeconds)
	envInt("GAMETABLE_WATCHDOG_TURN_INACTIVITY_SECONDS", &config.Watchdog.TurnInactivitySeconds)
	envInt("GAMETABLE_WATCHDOG_TRADE_OFFER_INACTIVITY_SECONDS", &config.Watchdog.TradeOfferInactivitySeconds)
	envInt("GAMETABLE_WATCHDOG_DISCARD_INACTIVITY_SECONDS", &config.Watchdog.DiscardInactivitySeconds)
	envInt("GAMETABLE_WATCHDOG_RESET_VOTE_TIMEOUT_SECONDS", &config.Watchdog.ResetVoteTimeoutSeconds)
	envInt("GAMETABLE_WATCHDOG_PING_INTERVAL_SECONDS", &config.Watchdog.PingIntervalSeconds)
	envInt("GAMETABLE_WATCHDOG_VERSION_GUESS_MS", &config.Watchdog.VersionGuessMillis)

	return config
}

// writeDefaultConfig writes a default config file with comments
func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("# Gametable server configuration\n\n"); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(config)
}
