package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderVertex   = "vertex"
)

// Config is built once at startup and handed to every constructor.
// Nothing below cmd/ reads the process environment directly.
type Config struct {
	DatabaseURL string

	// Gmail / OAuth
	GmailCredentialsFile string
	OAuthRedirectURL     string
	EncryptionKey        []byte
	EphemeralKey         bool // true when no ENCRYPTION_KEY was supplied

	// LLM
	LLMProvider          string
	LLMModel             string
	LLMAPIKey            string
	VertexProject        string
	VertexLocation       string
	LLMRequestsPerMinute int
	LLMMaxAttempts       int
	LLMBodyLimit         int

	// Scanning
	CheckInterval       time.Duration
	LookbackDays        int
	MaxEmailsPerCheck   int
	ScanParallelism     int
	PreserveManualEdits bool

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded (%v), using environment variables", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function so tests
// don't have to touch the real environment.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:          get("DATABASE_URL", "sqlite://job_applications.db"),
		GmailCredentialsFile: get("GMAIL_CREDENTIALS_FILE", "credentials.json"),
		OAuthRedirectURL:     get("OAUTH_REDIRECT_URL", ""),
		LLMProvider:          strings.ToLower(get("LLM_PROVIDER", ProviderGoogleAI)),
		HTTPAddr:             get("HTTP_ADDR", ":8080"),
		LogLevel:             get("LOG_LEVEL", "info"),
		LogFormat:            get("LOG_FORMAT", "console"),
	}

	switch cfg.LLMProvider {
	case ProviderGoogleAI:
		cfg.LLMModel = get("LLM_MODEL", "gemini-2.0-flash")
		cfg.LLMAPIKey = get("GEMINI_API_KEY", "")
	case ProviderOpenAI:
		cfg.LLMModel = get("LLM_MODEL", "gpt-4o-mini")
		cfg.LLMAPIKey = get("OPENAI_API_KEY", "")
	case ProviderVertex:
		cfg.LLMModel = get("LLM_MODEL", "gemini-2.0-flash")
		cfg.VertexProject = get("VERTEX_PROJECT", "")
		cfg.VertexLocation = get("VERTEX_LOCATION", "us-central1")
		if cfg.VertexProject == "" {
			return nil, fmt.Errorf("VERTEX_PROJECT is required for LLM_PROVIDER=%s", ProviderVertex)
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (want %s, %s or %s)", cfg.LLMProvider, ProviderGoogleAI, ProviderOpenAI, ProviderVertex)
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"LLM_REQUESTS_PER_MINUTE", 15, &cfg.LLMRequestsPerMinute},
		{"LLM_MAX_ATTEMPTS", 3, &cfg.LLMMaxAttempts},
		{"LLM_BODY_LIMIT", 2000, &cfg.LLMBodyLimit},
		{"LOOKBACK_DAYS", 10, &cfg.LookbackDays},
		{"MAX_EMAILS_PER_CHECK", 50, &cfg.MaxEmailsPerCheck},
		{"SCAN_PARALLELISM", 1, &cfg.ScanParallelism},
	}
	for _, it := range ints {
		n, err := positiveInt(get(it.key, ""), it.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = n
	}

	minutes, err := positiveInt(get("CHECK_INTERVAL_MINUTES", ""), 24*60)
	if err != nil {
		return nil, fmt.Errorf("CHECK_INTERVAL_MINUTES: %w", err)
	}
	cfg.CheckInterval = time.Duration(minutes) * time.Minute

	cfg.PreserveManualEdits, err = strconv.ParseBool(get("PRESERVE_MANUAL_EDITS", "true"))
	if err != nil {
		return nil, fmt.Errorf("PRESERVE_MANUAL_EDITS: %w", err)
	}

	if raw := get("ENCRYPTION_KEY", ""); raw != "" {
		key, err := DecodeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
		}
		cfg.EncryptionKey = key
	} else {
		cfg.EncryptionKey = make([]byte, 32)
		if _, err := rand.Read(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("generate encryption key: %w", err)
		}
		cfg.EphemeralKey = true
	}

	return cfg, nil
}

// DecodeKey accepts a standard or URL-safe base64 encoded 32 byte key.
func DecodeKey(raw string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		key, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
		}
		return key, nil
	}
	return nil, fmt.Errorf("key is not valid base64")
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
