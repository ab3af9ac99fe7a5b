// Package config loads and validates jicofo's environment configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReinviteMethod selects how a participant is moved to a new bridge session.
type ReinviteMethod string

const (
	ReinviteTransportReplace     ReinviteMethod = "transport-replace"
	ReinviteTerminateAndReinvite ReinviteMethod = "terminate-and-reinitiate"
)

// AuthType selects how client connections are authenticated.
type AuthType string

const (
	AuthNone AuthType = "NONE"
	AuthXMPP AuthType = "XMPP"
	AuthJWT  AuthType = "JWT"
)

// SourceSignalingDelay is one entry of the conference-size -> delay-ms step function.
type SourceSignalingDelay struct {
	FloorSize int
	DelayMs   int
}

// Config holds validated, process-wide configuration, per spec.md §6.
type Config struct {
	Port      string
	GoEnv     string
	LogLevel  string
	JWTSecret string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	AllowedOrigins  string
	DevelopmentMode bool

	Auth               AuthType
	Auth0Domain        string
	Auth0Audience      string
	AuthLoginURL       string
	AuthEnableAutoLogin bool
	AuthLifetime        time.Duration

	// conference.*
	ConferenceInitialTimeout          time.Duration
	ConferenceSingleParticipantTimeout time.Duration
	EnableAutoOwner                   bool
	EnableModeratorChecks             bool
	MaxSsrcsPerUser                   int
	MaxSsrcGroupsPerUser              int
	MaxAudioSenders                   int
	MaxVideoSenders                   int
	UseSsrcRewriting                  bool
	UseJSONEncodedSources             bool
	StripSimulcast                    bool
	SourceSignalingDelays             []SourceSignalingDelay
	RestartRequestMinInterval         time.Duration
	RestartRequestInterval            time.Duration
	RestartRequestMaxRequests         int
	ReinviteMethod                    ReinviteMethod
	MinParticipants                   int

	// bridge.*
	BridgeHealthChecksEnabled bool
	BridgeBreweryJID          string
	BridgeXMPPConnectionName  string
	LoadRedistributionEnabled bool
	LoadRedistributionInterval time.Duration
	LoadRedistributionTimeout  time.Duration
	LoadRedistributionEndpoints int
	LoadRedistributionStressThreshold float64
	OverloadThreshold          float64

	// recording.*
	MultiTrackRecorderURLTemplate string

	// rate limiting for the operator HTTP surface
	RateLimitAPIGlobal string
}

// ValidateEnv validates all required environment variables and returns a Config.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.Auth = AuthType(getEnvOrDefault("AUTH_TYPE", string(AuthNone)))
	switch cfg.Auth {
	case AuthNone, AuthXMPP, AuthJWT:
	default:
		errs = append(errs, fmt.Sprintf("AUTH_TYPE must be one of NONE|XMPP|JWT (got '%s')", cfg.Auth))
	}
	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	cfg.AuthLoginURL = os.Getenv("AUTH_LOGIN_URL")
	cfg.AuthEnableAutoLogin = os.Getenv("AUTH_ENABLE_AUTO_LOGIN") == "true"
	cfg.AuthLifetime = getEnvDurationOrDefault("AUTH_LIFETIME", 24*time.Hour)

	cfg.ConferenceInitialTimeout = getEnvDurationOrDefault("CONFERENCE_INITIAL_TIMEOUT", 15*time.Second)
	cfg.ConferenceSingleParticipantTimeout = getEnvDurationOrDefault("CONFERENCE_SINGLE_PARTICIPANT_TIMEOUT", 20*time.Second)
	cfg.EnableAutoOwner = getEnvBoolOrDefault("CONFERENCE_ENABLE_AUTO_OWNER", true)
	cfg.EnableModeratorChecks = getEnvBoolOrDefault("CONFERENCE_ENABLE_MODERATOR_CHECKS", true)
	cfg.MaxSsrcsPerUser = getEnvIntOrDefault("CONFERENCE_MAX_SSRCS_PER_USER", 20)
	cfg.MaxSsrcGroupsPerUser = getEnvIntOrDefault("CONFERENCE_MAX_SSRC_GROUPS_PER_USER", 20)
	cfg.MaxAudioSenders = getEnvIntOrDefault("CONFERENCE_MAX_AUDIO_SENDERS", 52)
	cfg.MaxVideoSenders = getEnvIntOrDefault("CONFERENCE_MAX_VIDEO_SENDERS", 25)
	cfg.UseSsrcRewriting = getEnvBoolOrDefault("CONFERENCE_USE_SSRC_REWRITING", true)
	cfg.UseJSONEncodedSources = getEnvBoolOrDefault("CONFERENCE_USE_JSON_ENCODED_SOURCES", false)
	cfg.StripSimulcast = getEnvBoolOrDefault("CONFERENCE_STRIP_SIMULCAST", false)
	cfg.SourceSignalingDelays = parseSourceSignalingDelays(getEnvOrDefault("CONFERENCE_SOURCE_SIGNALING_DELAYS", "0:0,10:250,20:500,50:1000"))
	cfg.RestartRequestMinInterval = getEnvDurationOrDefault("CONFERENCE_RESTART_REQUEST_MIN_INTERVAL", 1*time.Second)
	cfg.RestartRequestInterval = getEnvDurationOrDefault("CONFERENCE_RESTART_REQUEST_INTERVAL", 1*time.Hour)
	cfg.RestartRequestMaxRequests = getEnvIntOrDefault("CONFERENCE_RESTART_REQUEST_MAX_REQUESTS", 5)
	cfg.ReinviteMethod = ReinviteMethod(getEnvOrDefault("CONFERENCE_REINVITE_METHOD", string(ReinviteTransportReplace)))
	cfg.MinParticipants = getEnvIntOrDefault("CONFERENCE_MIN_PARTICIPANTS", 2)

	cfg.BridgeHealthChecksEnabled = getEnvBoolOrDefault("BRIDGE_HEALTH_CHECKS_ENABLED", true)
	cfg.BridgeBreweryJID = os.Getenv("BRIDGE_BREWERY_JID")
	cfg.BridgeXMPPConnectionName = getEnvOrDefault("BRIDGE_XMPP_CONNECTION_NAME", "default")
	cfg.LoadRedistributionEnabled = getEnvBoolOrDefault("BRIDGE_LOAD_REDISTRIBUTION_ENABLED", true)
	cfg.LoadRedistributionInterval = getEnvDurationOrDefault("BRIDGE_LOAD_REDISTRIBUTION_INTERVAL", 60*time.Second)
	cfg.LoadRedistributionTimeout = getEnvDurationOrDefault("BRIDGE_LOAD_REDISTRIBUTION_TIMEOUT", 60*time.Second)
	cfg.LoadRedistributionEndpoints = getEnvIntOrDefault("BRIDGE_LOAD_REDISTRIBUTION_ENDPOINTS", 1)
	cfg.LoadRedistributionStressThreshold = getEnvFloatOrDefault("BRIDGE_LOAD_REDISTRIBUTION_STRESS_THRESHOLD", 0.8)
	cfg.OverloadThreshold = getEnvFloatOrDefault("BRIDGE_OVERLOAD_THRESHOLD", 0.8)

	cfg.MultiTrackRecorderURLTemplate = os.Getenv("RECORDING_MULTI_TRACK_RECORDER_URL_TEMPLATE")

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

// parseSourceSignalingDelays parses "size:ms,size:ms,..." into a sorted step function.
func parseSourceSignalingDelays(spec string) []SourceSignalingDelay {
	var delays []SourceSignalingDelay
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		size, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		ms, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			continue
		}
		delays = append(delays, SourceSignalingDelay{FloorSize: size, DelayMs: ms})
	}
	for i := 1; i < len(delays); i++ {
		for j := i; j > 0 && delays[j-1].FloorSize > delays[j].FloorSize; j-- {
			delays[j-1], delays[j] = delays[j], delays[j-1]
		}
	}
	return delays
}

// DelayForSize returns the floorEntry(size) delay from the step function.
func (c *Config) DelayForSize(size int) time.Duration {
	best := 0
	for _, d := range c.SourceSignalingDelays {
		if d.FloorSize <= size {
			best = d.DelayMs
		} else {
			break
		}
	}
	return time.Duration(best) * time.Millisecond
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"redis_enabled", cfg.RedisEnabled,
		"go_env", cfg.GoEnv,
		"auth", cfg.Auth,
		"reinvite_method", cfg.ReinviteMethod,
		"load_redistribution_enabled", cfg.LoadRedistributionEnabled,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		return value == "true"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
