// Package config loads gateway configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Tier is a static admission/pricing class assigned to an API key.
type Tier struct {
	Name                string
	RequestsPerHour     int
	RequestsPerDay      int
	ConcurrentRequests  int
	MaxTokensPerRequest int
	MaxContextWindow    int
	AllowedModels       map[string]bool // contains "*" iff unrestricted
	AllowedEndpoints    map[string]bool // contains "*" iff unrestricted
	Priority            int
	MonthlyPriceUSD     float64
	InputPricePerToken  float64
	OutputPricePerToken float64
}

// AllowsModel reports whether this tier may invoke the given model.
func (t Tier) AllowsModel(model string) bool {
	return t.AllowedModels["*"] || t.AllowedModels[model]
}

// AllowsEndpoint reports whether this tier may call the given endpoint.
func (t Tier) AllowsEndpoint(endpoint string) bool {
	return t.AllowedEndpoints["*"] || t.AllowedEndpoints[endpoint]
}

// ModelAuthStyle names how the gateway authenticates to an upstream model.
type ModelAuthStyle string

const (
	AuthStyleAPIKey ModelAuthStyle = "api-key"
	AuthStyleBearer ModelAuthStyle = "bearer"
	AuthStyleCustom ModelAuthStyle = "custom"
)

// Model is static, process-wide configuration for one upstream LLM.
type Model struct {
	ID               string
	DisplayName      string
	BaseURL          string
	HealthPath       string
	Capabilities     map[string]bool
	ContextWindow    int
	MaxOutputTokens  int
	InputPricePerTok float64
	OutputPricePerTk float64
	AuthStyle        ModelAuthStyle
	AuthHeaderName   string
	APIKey           string
}

// OAuthProvider is one externally configured OAuth/OIDC identity provider.
type OAuthProvider struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// Config holds all gateway configuration, loaded once at startup and never
// mutated afterward. Readers share it without locking.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration
	APIVersion      string

	// Redis (C1)
	RedisURL string

	// Auth (C4)
	APIKeyHeader    string
	JWTIssuer       string
	JWTAudience     string
	JWTPrivateKeyPEM string
	JWTPublicKeyPEM  string
	JWTDevHS256Secret string

	// Tiers and models (read-only process-wide state)
	Tiers  map[string]Tier
	Models map[string]Model

	OAuthProviders map[string]OAuthProvider

	// Admission (C5)
	RateLimitEnabled  bool
	GlobalRPS         int
	GlobalBurst       int
	PerIPPerMinute    int
	IPBlacklistTicks  int

	// Security (C6)
	AllowedContentTypes []string
	MaxBodyBytes        int64

	// Observability (C9)
	LogLevel string

	// Timeouts
	DefaultTimeout time.Duration
}

// Load reads configuration from environment variables and an optional .env
// file, then assembles the static tier/model tables.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("GATEWAY_DEFAULT_TIMEOUT_SEC", 120)

	addr := getEnv("GATEWAY_ADDR", getEnv("PORT_ADDR", ""))
	if addr == "" {
		addr = ":" + getEnv("PORT", "8080")
	}

	cfg := &Config{
		Addr:            addr,
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		APIVersion:      getEnv("API_VERSION", "v1"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		APIKeyHeader:      getEnv("API_KEY_HEADER", "X-API-Key"),
		JWTIssuer:         getEnv("JWT_ISSUER", "aigateway"),
		JWTAudience:       getEnv("JWT_AUDIENCE", "aigateway-clients"),
		JWTPrivateKeyPEM:  os.Getenv("JWT_PRIVATE_KEY_PEM"),
		JWTPublicKeyPEM:   os.Getenv("JWT_PUBLIC_KEY_PEM"),
		JWTDevHS256Secret: getEnv("JWT_DEV_HS256_SECRET", "development-only-secret"),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		GlobalRPS:        getEnvInt("GATEWAY_GLOBAL_RPS", 500),
		GlobalBurst:      getEnvInt("GATEWAY_GLOBAL_BURST", 100),
		PerIPPerMinute:   getEnvInt("GATEWAY_PER_IP_RPM", 120),
		IPBlacklistTicks: getEnvInt("GATEWAY_IP_BLACKLIST_TICKS", 5),

		AllowedContentTypes: []string{"application/json", "text/plain", "multipart/form-data"},
		MaxBodyBytes:        int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 1*1024*1024)),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DefaultTimeout: time.Duration(defaultTimeoutSec) * time.Second,
	}

	cfg.Tiers = defaultTiers()
	cfg.Models = defaultModels()
	cfg.OAuthProviders = loadOAuthProviders()

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func defaultTiers() map[string]Tier {
	all := map[string]bool{"*": true}
	return map[string]Tier{
		"free": {
			Name: "free", RequestsPerHour: 1000, RequestsPerDay: 5000,
			ConcurrentRequests: 2, MaxTokensPerRequest: 1024, MaxContextWindow: 8192,
			AllowedModels:    map[string]bool{"qwen3_42b": true},
			AllowedEndpoints: map[string]bool{"/v1/completions": true, "/v1/chat/completions": true, "/v1/models": true, "/v1/usage": true},
			Priority:         0, MonthlyPriceUSD: 0, InputPricePerToken: 0, OutputPricePerToken: 0,
		},
		"professional": {
			Name: "professional", RequestsPerHour: 10000, RequestsPerDay: 100000,
			ConcurrentRequests: 10, MaxTokensPerRequest: 4096, MaxContextWindow: 32768,
			AllowedModels:    map[string]bool{"qwen3_42b": true, "qwen3_moe": true},
			AllowedEndpoints: all,
			Priority:         1, MonthlyPriceUSD: 49, InputPricePerToken: 0.000002, OutputPricePerToken: 0.000006,
		},
		"enterprise": {
			Name: "enterprise", RequestsPerHour: 100000, RequestsPerDay: 2000000,
			ConcurrentRequests: 50, MaxTokensPerRequest: 8192, MaxContextWindow: 131072,
			AllowedModels:    all,
			AllowedEndpoints: all,
			Priority:         2, MonthlyPriceUSD: 999, InputPricePerToken: 0.0000015, OutputPricePerToken: 0.0000045,
		},
		"internal": {
			Name: "internal", RequestsPerHour: 1000000, RequestsPerDay: 20000000,
			ConcurrentRequests: 200, MaxTokensPerRequest: 32768, MaxContextWindow: 262144,
			AllowedModels:    all,
			AllowedEndpoints: all,
			Priority:         3, MonthlyPriceUSD: 0, InputPricePerToken: 0, OutputPricePerToken: 0,
		},
	}
}

func defaultModels() map[string]Model {
	return map[string]Model{
		"qwen3_42b": {
			ID:               "qwen3_42b",
			DisplayName:      "Qwen3 42B",
			BaseURL:          getEnv("MODEL_QWEN3_42B_BASE_URL", "http://localhost:9001"),
			HealthPath:       "/health",
			Capabilities:     map[string]bool{"chat": true, "completions": true, "code": true},
			ContextWindow:    32768,
			MaxOutputTokens:  4096,
			InputPricePerTok: 0.000002,
			OutputPricePerTk: 0.000006,
			AuthStyle:        AuthStyleAPIKey,
			AuthHeaderName:   "X-API-Key",
			APIKey:           os.Getenv("MODEL_QWEN3_42B_API_KEY"),
		},
		"qwen3_moe": {
			ID:               "qwen3_moe",
			DisplayName:      "Qwen3 MoE (red team)",
			BaseURL:          getEnv("MODEL_QWEN3_MOE_BASE_URL", "http://localhost:9002"),
			HealthPath:       "/health",
			Capabilities:     map[string]bool{"chat": true, "completions": true, "security-scan": true},
			ContextWindow:    65536,
			MaxOutputTokens:  8192,
			InputPricePerTok: 0.000003,
			OutputPricePerTk: 0.000009,
			AuthStyle:        AuthStyleBearer,
			AuthHeaderName:   "Authorization",
			APIKey:           os.Getenv("MODEL_QWEN3_MOE_API_KEY"),
		},
	}
}

func loadOAuthProviders() map[string]OAuthProvider {
	providers := map[string]OAuthProvider{}
	for _, name := range []string{"google", "github"} {
		upper := strings.ToUpper(name)
		clientID := os.Getenv("OAUTH_" + upper + "_CLIENT_ID")
		if clientID == "" {
			continue
		}
		providers[name] = OAuthProvider{
			Name:         name,
			ClientID:     clientID,
			ClientSecret: os.Getenv("OAUTH_" + upper + "_CLIENT_SECRET"),
			AuthURL:      getEnv("OAUTH_"+upper+"_AUTH_URL", ""),
			TokenURL:     getEnv("OAUTH_"+upper+"_TOKEN_URL", ""),
			UserInfoURL:  getEnv("OAUTH_"+upper+"_USERINFO_URL", ""),
			RedirectURL:  getEnv("OAUTH_"+upper+"_REDIRECT_URL", ""),
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	return providers
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
