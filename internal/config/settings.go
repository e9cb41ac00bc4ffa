package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const configFile = "configuration.toml"

// Settings is the viper-backed implementation of Config. Values come from
// configuration.toml in the working directory with environment variables
// taking precedence; every key has a default so the server starts without
// either.
type Settings struct {
	v *viper.Viper
}

var _ Config = (*Settings)(nil)

// New loads configuration.toml (if present) and the environment.
// A missing or unreadable file falls back to defaults, matching the
// behaviour of a first run before any configuration has been written.
func New() *Settings {
	v := viper.New()

	v.SetConfigFile(configFile)
	v.SetConfigType("toml")

	v.SetDefault("server_port", 8888)
	v.SetDefault("app_name", "Session Service")
	v.SetDefault("data_folder", "./data")
	v.SetDefault("env", "DEV")
	v.SetDefault("session_life_time", 5)
	v.SetDefault("access_key_lifetime", 5)
	v.SetDefault("max_sessions_count", 3)
	v.SetDefault("session_cookie_name", "session-key")
	v.SetDefault("fingerprint_header_name", "x-unique")
	v.SetDefault("update_session_time_on_request", true)
	v.SetDefault("origins", []string{"http://localhost:8888"})
	v.SetDefault("issuer", "go-session-service")
	v.SetDefault("session_store", "memory")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("database_url", "")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("configuration file not loaded, using defaults")
	}
	v.AutomaticEnv()

	return &Settings{v: v}
}

func (s *Settings) GetPort() string {
	port := s.v.GetString("server_port")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (s *Settings) GetAppName() string {
	return s.v.GetString("app_name")
}

func (s *Settings) GetDataFolder() string {
	return s.v.GetString("data_folder")
}

func (s *Settings) GetEnv() string {
	return s.v.GetString("env")
}

func (s *Settings) GetAllowedOrigins() AllowedOrigins {
	return NewAllowedOrigins(s.v.GetStringSlice("origins"))
}

func (s *Settings) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE, OPTIONS"
}

func (s *Settings) GetAllowedHeaders() string {
	return strings.Join([]string{"Origin", "Accept", "Content-Type", "Authorization", s.GetFingerprintHeaderName()}, ", ")
}

func (s *Settings) GetSessionLifeTime() int {
	return s.v.GetInt("session_life_time")
}

func (s *Settings) GetMaxSessionsCount() int {
	return s.v.GetInt("max_sessions_count")
}

func (s *Settings) GetSessionCookieName() string {
	return s.v.GetString("session_cookie_name")
}

func (s *Settings) GetFingerprintHeaderName() string {
	return s.v.GetString("fingerprint_header_name")
}

func (s *Settings) GetUpdateSessionTimeOnRequest() bool {
	return s.v.GetBool("update_session_time_on_request")
}

func (s *Settings) GetAccessKeyLifetime() int {
	return s.v.GetInt("access_key_lifetime")
}

func (s *Settings) GetIssuer() string {
	return s.v.GetString("issuer")
}

func (s *Settings) GetSessionStore() string {
	return strings.ToLower(s.v.GetString("session_store"))
}

func (s *Settings) GetRedisAddr() string {
	return s.v.GetString("redis_addr")
}

func (s *Settings) GetDatabaseURL() string {
	return s.v.GetString("database_url")
}
