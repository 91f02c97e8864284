package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	JWTSecret    string
	JWTAlgorithm string
	JWTTTL       time.Duration
	JWTIssuer    string
	JWTAudience  string
	JWTLeeway    time.Duration

	SessionTokenTTL        time.Duration
	SessionCleanupInterval time.Duration
	SessionCookieName      string
	SessionCookieSecure    bool
	AmbientSessionTTL      time.Duration

	UsersFile   string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	RedisURL    string
	BcryptCost  int

	CORSOrigins         []string
	RateLimitRPM        int
	AuthRateLimitRPM    int
	AuthForbiddenStatus int

	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthUserInfoURL  string
	OAuthRedirectURL  string
	OAuthScopes       []string

	LogLevel  string
	LogFormat string
}

// fileConfig mirrors the optional YAML file. Environment variables win over it.
type fileConfig struct {
	Server struct {
		Port           string `yaml:"port"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`
	JWT struct {
		Algorithm string `yaml:"algorithm"`
		TTL       string `yaml:"ttl"`
		Issuer    string `yaml:"issuer"`
		Audience  string `yaml:"audience"`
		Leeway    string `yaml:"leeway"`
	} `yaml:"jwt"`
	Session struct {
		TokenTTL     string `yaml:"token_ttl"`
		AmbientTTL   string `yaml:"ambient_ttl"`
		CookieName   string `yaml:"cookie_name"`
		CookieSecure *bool  `yaml:"cookie_secure"`
	} `yaml:"session"`
	Storage struct {
		UsersFile   string `yaml:"users_file"`
		DatabaseURL string `yaml:"database_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"storage"`
	Auth struct {
		BcryptCost      int      `yaml:"bcrypt_cost"`
		ForbiddenStatus int      `yaml:"forbidden_status"`
		CORSOrigins     []string `yaml:"cors_origins"`
	} `yaml:"auth"`
	OAuth struct {
		AuthURL     string   `yaml:"auth_url"`
		TokenURL    string   `yaml:"token_url"`
		UserInfoURL string   `yaml:"userinfo_url"`
		RedirectURL string   `yaml:"redirect_url"`
		Scopes      []string `yaml:"scopes"`
	} `yaml:"oauth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ServerPort:              "8080",
		ServerReadHeaderTimeout: 10 * time.Second,
		ServerWriteTimeout:      30 * time.Second,
		ServerIdleTimeout:       120 * time.Second,
		RequestTimeout:          30 * time.Second,
		JWTAlgorithm:            "HS256",
		JWTTTL:                  time.Hour,
		JWTIssuer:               "go-identity-gate",
		JWTAudience:             "go-identity-gate-clients",
		SessionTokenTTL:         24 * time.Hour,
		SessionCleanupInterval:  10 * time.Minute,
		SessionCookieName:       "identity_session",
		AmbientSessionTTL:       24 * time.Hour,
		UsersFile:               "./users.json",
		DBMaxConns:              10,
		DBMinConns:              1,
		BcryptCost:              12,
		CORSOrigins:             []string{"*"},
		RateLimitRPM:            100,
		AuthRateLimitRPM:        10,
		AuthForbiddenStatus:     http.StatusUnauthorized,
		OAuthAuthURL:            "https://accounts.google.com/o/oauth2/auth",
		OAuthTokenURL:           "https://oauth2.googleapis.com/token",
		OAuthUserInfoURL:        "https://openidconnect.googleapis.com/v1/userinfo",
		OAuthScopes:             []string{"openid", "email", "profile"},
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.ServerPort, fc.Server.Port)
	setDuration(&c.RequestTimeout, fc.Server.RequestTimeout)
	setString(&c.JWTAlgorithm, fc.JWT.Algorithm)
	setDuration(&c.JWTTTL, fc.JWT.TTL)
	setString(&c.JWTIssuer, fc.JWT.Issuer)
	setString(&c.JWTAudience, fc.JWT.Audience)
	setDuration(&c.JWTLeeway, fc.JWT.Leeway)
	setDuration(&c.SessionTokenTTL, fc.Session.TokenTTL)
	setDuration(&c.AmbientSessionTTL, fc.Session.AmbientTTL)
	setString(&c.SessionCookieName, fc.Session.CookieName)
	if fc.Session.CookieSecure != nil {
		c.SessionCookieSecure = *fc.Session.CookieSecure
	}
	setString(&c.UsersFile, fc.Storage.UsersFile)
	setString(&c.DatabaseURL, fc.Storage.DatabaseURL)
	setString(&c.RedisURL, fc.Storage.RedisURL)
	if fc.Auth.BcryptCost > 0 {
		c.BcryptCost = fc.Auth.BcryptCost
	}
	if fc.Auth.ForbiddenStatus > 0 {
		c.AuthForbiddenStatus = fc.Auth.ForbiddenStatus
	}
	if len(fc.Auth.CORSOrigins) > 0 {
		c.CORSOrigins = fc.Auth.CORSOrigins
	}
	setString(&c.OAuthAuthURL, fc.OAuth.AuthURL)
	setString(&c.OAuthTokenURL, fc.OAuth.TokenURL)
	setString(&c.OAuthUserInfoURL, fc.OAuth.UserInfoURL)
	setString(&c.OAuthRedirectURL, fc.OAuth.RedirectURL)
	if len(fc.OAuth.Scopes) > 0 {
		c.OAuthScopes = fc.OAuth.Scopes
	}
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)

	return nil
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.ServerReadHeaderTimeout = getDuration("SERVER_READ_HEADER_TIMEOUT", c.ServerReadHeaderTimeout)
	c.ServerWriteTimeout = getDuration("SERVER_WRITE_TIMEOUT", c.ServerWriteTimeout)
	c.ServerIdleTimeout = getDuration("SERVER_IDLE_TIMEOUT", c.ServerIdleTimeout)
	c.RequestTimeout = getDuration("REQUEST_TIMEOUT", c.RequestTimeout)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTAlgorithm = strings.ToUpper(getEnv("JWT_ALGORITHM", c.JWTAlgorithm))
	c.JWTTTL = getDuration("JWT_TTL", c.JWTTTL)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)
	c.JWTLeeway = getDuration("JWT_LEEWAY", c.JWTLeeway)

	c.SessionTokenTTL = getDuration("SESSION_TOKEN_TTL", c.SessionTokenTTL)
	c.SessionCleanupInterval = getDuration("SESSION_CLEANUP_INTERVAL", c.SessionCleanupInterval)
	c.SessionCookieName = getEnv("SESSION_COOKIE_NAME", c.SessionCookieName)
	c.SessionCookieSecure = getBool("SESSION_COOKIE_SECURE", c.SessionCookieSecure)
	c.AmbientSessionTTL = getDuration("AMBIENT_SESSION_TTL", c.AmbientSessionTTL)

	c.UsersFile = getEnv("USERS_FILE", c.UsersFile)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DBMaxConns = int32(getInt("DB_MAX_CONNS", int(c.DBMaxConns)))
	c.DBMinConns = int32(getInt("DB_MIN_CONNS", int(c.DBMinConns)))
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.BcryptCost = getInt("BCRYPT_COST", c.BcryptCost)

	if origins := splitCSV(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		c.CORSOrigins = origins
	}
	c.RateLimitRPM = getInt("RATE_LIMIT_RPM", c.RateLimitRPM)
	c.AuthRateLimitRPM = getInt("AUTH_RATE_LIMIT_RPM", c.AuthRateLimitRPM)
	c.AuthForbiddenStatus = getInt("AUTH_FORBIDDEN_STATUS", c.AuthForbiddenStatus)

	c.OAuthClientID = getEnv("OAUTH_CLIENT_ID", c.OAuthClientID)
	c.OAuthClientSecret = getEnv("OAUTH_CLIENT_SECRET", c.OAuthClientSecret)
	c.OAuthAuthURL = getEnv("OAUTH_AUTH_URL", c.OAuthAuthURL)
	c.OAuthTokenURL = getEnv("OAUTH_TOKEN_URL", c.OAuthTokenURL)
	c.OAuthUserInfoURL = getEnv("OAUTH_USERINFO_URL", c.OAuthUserInfoURL)
	c.OAuthRedirectURL = getEnv("OAUTH_REDIRECT_URL", c.OAuthRedirectURL)
	if scopes := splitCSV(os.Getenv("OAUTH_SCOPES")); len(scopes) > 0 {
		c.OAuthScopes = scopes
	}

	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, ok := jwt.GetSigningMethod(c.JWTAlgorithm).(*jwt.SigningMethodHMAC); !ok {
		return fmt.Errorf("JWT_ALGORITHM %q is not a supported HMAC algorithm", c.JWTAlgorithm)
	}

	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}

	if c.JWTLeeway < 0 {
		return fmt.Errorf("JWT_LEEWAY cannot be negative")
	}

	if strings.TrimSpace(c.JWTIssuer) == "" || strings.TrimSpace(c.JWTAudience) == "" {
		return fmt.Errorf("JWT_ISSUER and JWT_AUDIENCE cannot be empty")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.SessionTokenTTL <= 0 || c.AmbientSessionTTL <= 0 {
		return fmt.Errorf("session TTLs must be positive")
	}

	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME cannot be empty")
	}

	if c.DatabaseURL == "" && strings.TrimSpace(c.UsersFile) == "" {
		return fmt.Errorf("either DATABASE_URL or USERS_FILE is required")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.AuthForbiddenStatus != http.StatusUnauthorized && c.AuthForbiddenStatus != http.StatusForbidden {
		return fmt.Errorf("AUTH_FORBIDDEN_STATUS must be 401 or 403")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	return nil
}

// FederatedEnabled reports whether an OAuth2 client is configured.
func (c *Config) FederatedEnabled() bool {
	return c.OAuthClientID != "" && c.OAuthRedirectURL != ""
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if v, err := time.ParseDuration(raw); err == nil {
		*dst = v
	}
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
