package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultPort                   = "8080"
	defaultFrontendOrigin         = "https://nelson-gpt.vercel.app"
	defaultMistralBaseURL         = "https://api.mistral.ai/v1"
	defaultMistralModel           = "mistral-large-latest"
	defaultAuthDailyMessageLimit  = 1000
	defaultGuestDailyMessageLimit = 5
	defaultCompletionTimeoutSecs  = 60
	defaultLogLevel               = "info"
)

// DefaultSystemPrompt is used when a turn carries no systemPrompt override.
const DefaultSystemPrompt = "You are NelsonGPT, a smart pediatric assistant grounded in the Nelson Textbook of Pediatrics. " +
	"Answer pediatric questions accurately, state uncertainty plainly, flag emergencies, and cite the relevant Nelson sections. " +
	"You support clinicians; you do not replace clinical judgement."

type Config struct {
	Port                   string
	Environment            string
	AllowedOrigins         []string
	LogLevel               string
	TursoDatabaseURL       string
	TursoAuthToken         string
	MistralAPIKey          string
	MistralBaseURL         string
	MistralModel           string
	SystemPromptDefault    string
	AuthDailyMessageLimit  int
	GuestDailyMessageLimit int

	// CompletionTimeoutSeconds bounds one streamed completion, upstream
	// stalls included.
	CompletionTimeoutSeconds int

	// HistoryAPIEnabled mounts GET /v1/chats/{chatID}/messages. The route
	// trusts the userId query parameter, so it stays off unless the
	// deployment sits behind something that authenticates callers.
	HistoryAPIEnabled bool
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// PersistenceEnabled reports whether a durable store was configured.
func (c Config) PersistenceEnabled() bool {
	return c.TursoDatabaseURL != ""
}

func Load() (Config, error) {
	cfg := Config{
		Port:                     envOrDefault("PORT", defaultPort),
		Environment:              envOrDefault("APP_ENV", "development"),
		LogLevel:                 envOrDefault("LOG_LEVEL", defaultLogLevel),
		TursoDatabaseURL:         strings.TrimSpace(os.Getenv("TURSO_DATABASE_URL")),
		TursoAuthToken:           strings.TrimSpace(os.Getenv("TURSO_AUTH_TOKEN")),
		MistralAPIKey:            firstEnv("NELSON_API_KEY", "MISTRAL_API_KEY"),
		MistralBaseURL:           envOrDefault("MISTRAL_BASE_URL", defaultMistralBaseURL),
		MistralModel:             envOrDefault("MISTRAL_MODEL", defaultMistralModel),
		SystemPromptDefault:      envOrDefault("SYSTEM_PROMPT_DEFAULT", DefaultSystemPrompt),
		AuthDailyMessageLimit:    intOrDefault("AUTH_DAILY_MESSAGE_LIMIT", defaultAuthDailyMessageLimit),
		GuestDailyMessageLimit:   intOrDefault("GUEST_DAILY_MESSAGE_LIMIT", defaultGuestDailyMessageLimit),
		CompletionTimeoutSeconds: intOrDefault("COMPLETION_TIMEOUT_SECONDS", defaultCompletionTimeoutSecs),
		HistoryAPIEnabled:        boolOrDefault("HISTORY_API_ENABLED", false),
	}

	if cfg.AuthDailyMessageLimit <= 0 {
		return Config{}, errors.New("AUTH_DAILY_MESSAGE_LIMIT must be > 0")
	}
	if cfg.GuestDailyMessageLimit < 0 {
		return Config{}, errors.New("GUEST_DAILY_MESSAGE_LIMIT must be >= 0")
	}

	if cfg.CompletionTimeoutSeconds <= 0 {
		return Config{}, errors.New("COMPLETION_TIMEOUT_SECONDS must be > 0")
	}

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", defaultFrontendOrigin+",http://localhost:3000"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if strings.HasPrefix(cfg.TursoDatabaseURL, "libsql://") && cfg.TursoAuthToken == "" {
		return Config{}, errors.New("TURSO_AUTH_TOKEN is required for libsql:// URLs")
	}

	// The credential may be absent here; the chat pipeline rejects the
	// request before streaming when it is.
	return cfg, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
