package config

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	TokenConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// SessionConfig covers the session table and the cookie/header contract.
type SessionConfig interface {
	// GetSessionLifeTime returns the session lifetime in days.
	GetSessionLifeTime() int
	// GetMaxSessionsCount returns the per-user cap on live sessions.
	GetMaxSessionsCount() int
	GetSessionCookieName() string
	GetFingerprintHeaderName() string
	// GetUpdateSessionTimeOnRequest reports whether a successful access
	// key refresh also extends the session expiry.
	GetUpdateSessionTimeOnRequest() bool
}

// TokenConfig covers access credential issuance.
type TokenConfig interface {
	// GetAccessKeyLifetime returns the access credential lifetime in minutes.
	GetAccessKeyLifetime() int
	GetIssuer() string
}

// StoreConfig selects the storage backends.
type StoreConfig interface {
	// GetSessionStore returns one of "memory", "redis", "postgres".
	GetSessionStore() string
	GetRedisAddr() string
	GetDatabaseURL() string
}
