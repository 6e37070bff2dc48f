package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	FrontendOrigin     string
	LogLevel           string
	RedisAddr          string
	RedisPass          string
	RedisDB            int
	CacheTTL           time.Duration
	CacheSingleFlight  bool
	DispatchTimeout    time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	ShutdownTimeout    time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":5000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://athlink:athlink@db:5432/athlink?sslmode=disable"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_HOURS", 24*7)) * time.Hour,
		FrontendOrigin:     GetString("FRONTEND_ORIGIN", ""),
		LogLevel:           GetString("LOG_LEVEL", ""),
		RedisAddr:          GetString("REDIS_ADDR", ""),
		RedisPass:          GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		CacheTTL:           GetDuration("CACHE_TTL_SECONDS", time.Hour),
		CacheSingleFlight:  GetBool("CACHE_SINGLE_FLIGHT", false),
		DispatchTimeout:    GetDuration("DISPATCH_TIMEOUT_SECONDS", 10*time.Second),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		ShutdownTimeout:    GetDuration("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
	}
}

// Production reports whether the service runs with production defaults.
func (c APIConfig) Production() bool {
	return c.Environment == "production"
}
