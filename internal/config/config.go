package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRewriteTemplate is the compiled-in caption template. Admins can
// override it via the REWRITE_TEMPLATE setting; {original_text} is substituted.
const DefaultRewriteTemplate = "Перепиши пост в живом авторском стиле для Telegram-канала. " +
	"Сохрани смысл, убери канцелярит, добавь лёгкую подачу.\n\n{original_text}"

// DefaultKieRegenTemplate is the compiled-in image prompt template for the
// reference-image regeneration model.
const DefaultKieRegenTemplate = "Recreate this scene as a clean, vivid illustration in a consistent style. " +
	"Context of the post: {original_text}"

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	ReviewChatID    int64
	Destination     string
	AdminIDs        []int64
	WatcherSenderID int64
	DefaultLanguage string

	SentryDSN       string
	MongoDBURI      string
	MongoDBDatabase string

	KIEAPIKey       string
	KIEAPIBase      string
	KIECreatePath   string
	KIEQueryPath    string
	KIEModel        string
	KIEOutputFormat string
	KIEImageSize    string
	KIEPollInterval time.Duration
	KIEMaxAttempts  int

	OpenAIAPIKey             string
	OpenAIModel              string
	OpenAISystemInstructions string

	RewriteTemplate  string
	KieRegenTemplate string

	MediaDir         string
	PublishEvery     time.Duration
	PublishBatchSize int

	ExternalBotUsername string
	ExternalButtonText  string

	ResolverAPIKey string
	ResolverBind   string
	ResolverPort   int
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	reviewChatID, err := parseOptionalInt64(getEnv("ADMIN_REVIEW_CHAT_ID", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_REVIEW_CHAT_ID: %w", err)
	}
	watcherSenderID, err := parseOptionalInt64(getEnv("WATCHER_SENDER_ID", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid WATCHER_SENDER_ID: %w", err)
	}

	pollInterval, err := parsePositiveInt(getEnv("KIE_POLL_INTERVAL_SEC", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid KIE_POLL_INTERVAL_SEC: %w", err)
	}
	maxAttempts, err := parsePositiveInt(getEnv("KIE_MAX_ATTEMPTS", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid KIE_MAX_ATTEMPTS: %w", err)
	}
	publishEvery, err := parsePositiveInt(getEnv("PUBLISH_EVERY_MINUTES", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_EVERY_MINUTES: %w", err)
	}
	batchSize, err := parsePositiveInt(getEnv("PUBLISH_BATCH_SIZE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_BATCH_SIZE: %w", err)
	}
	resolverPort, err := parsePositiveInt(getEnv("RESOLVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESOLVER_PORT: %w", err)
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Debug:           debug,
		Version:         getEnv("VERSION", "dev"),
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		ReviewChatID:    reviewChatID,
		Destination:     getEnv("DESTINATION_CHANNEL", ""),
		AdminIDs:        parseAdminIDs(getEnv("ADMIN_IDS", "")),
		WatcherSenderID: watcherSenderID,
		DefaultLanguage: getEnv("LANG_DEFAULT", "ru"),

		SentryDSN:       getEnv("SENTRY_DSN", ""),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", ""),

		KIEAPIKey:       getEnv("KIE_API_KEY", ""),
		KIEAPIBase:      strings.TrimRight(getEnv("KIE_API_BASE", "https://api.kie.ai/api/v1"), "/"),
		KIECreatePath:   getEnv("KIE_CREATE_PATH", "/jobs/createTask"),
		KIEQueryPath:    getEnv("KIE_QUERY_PATH", "/jobs/recordInfo"),
		KIEModel:        getEnv("KIE_MODEL", "google/nano-banana-edit"),
		KIEOutputFormat: getEnv("KIE_OUTPUT_FORMAT", "png"),
		KIEImageSize:    getEnv("KIE_IMAGE_SIZE", "3:4"),
		KIEPollInterval: time.Duration(pollInterval) * time.Second,
		KIEMaxAttempts:  maxAttempts,

		OpenAIAPIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:              getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAISystemInstructions: getEnv("OPENAI_SYSTEM_INSTRUCTIONS", ""),

		RewriteTemplate:  getEnv("REWRITE_TEMPLATE", DefaultRewriteTemplate),
		KieRegenTemplate: getEnv("KIE_REGEN_TEMPLATE", DefaultKieRegenTemplate),

		MediaDir:         getEnv("MEDIA_DIR", "data/media"),
		PublishEvery:     time.Duration(publishEvery) * time.Minute,
		PublishBatchSize: batchSize,

		ExternalBotUsername: getEnv("EXTERNAL_BOT_USERNAME", "PromptikaBot"),
		ExternalButtonText:  getEnv("EXTERNAL_BUTTON_TEXT", "Попробовать"),

		ResolverAPIKey: getEnv("RESOLVER_API_KEY", ""),
		ResolverBind:   getEnv("RESOLVER_BIND", "0.0.0.0"),
		ResolverPort:   resolverPort,
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.MongoDBDatabase == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required")
	}
	if cfg.KIEAPIKey == "" {
		return nil, fmt.Errorf("KIE_API_KEY is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.ReviewChatID == 0 {
		log.Println("Warning: ADMIN_REVIEW_CHAT_ID is not set; drafts cannot be sent for review")
	}
	if cfg.Destination == "" {
		log.Println("Warning: DESTINATION_CHANNEL is not set; publish ticks will be no-ops")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseOptionalInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parsePositiveInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", v)
	}
	return v, nil
}

// parseAdminIDs parses the ADMIN_IDS CSV, skipping malformed entries.
func parseAdminIDs(csv string) []int64 {
	var ids []int64
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("Warning: skipping malformed admin id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
