package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Skufu/chadsvasc/internal/advisor"
	"github.com/Skufu/chadsvasc/internal/logging"
	"github.com/Skufu/chadsvasc/internal/metrics"
	"github.com/Skufu/chadsvasc/internal/risktable"
	"github.com/Skufu/chadsvasc/internal/store"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Port            string
	GinMode         string
	LogLevel        string
	LogFormat       string
	DatabaseURL     string
	EnableDB        bool
	RedisURL        string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AdvisorTimeout  time.Duration
	AdvisorCacheTTL time.Duration
	CORSOrigins     []string
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "chadsvasc")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	deps := &dependencies{
		logger:  logger,
		table:   risktable.Default(),
		metrics: metrics.New(),
	}

	if cfg.EnableDB {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		repo := store.NewPGRepository(pool)
		defer repo.Close()
		deps.repo = repo
	}

	advisorOpts := []advisor.Option{
		advisor.WithModel(cfg.OpenAIModel),
		advisor.WithTable(deps.table),
		advisor.WithLogger(logger.Named("advisor")),
	}
	if cfg.RedisURL != "" {
		client, err := advisor.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			// Cache is optional.
			logger.Warn("redis unavailable, advisor cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cache := advisor.NewRedisCache(client)
			deps.cache = cache
			advisorOpts = append(advisorOpts, advisor.WithCache(cache, cfg.AdvisorCacheTTL))
		}
	}

	var chat advisor.ChatClient
	if cfg.OpenAIAPIKey != "" {
		chat = advisor.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.AdvisorTimeout, logger.Named("openai"))
	} else {
		logger.Info("OPENAI_API_KEY not set, recommendations use the guideline fallback")
	}
	deps.advisor = advisor.New(chat, advisorOpts...)
	deps.advisorTimeout = cfg.AdvisorTimeout

	router := setupRouter(deps, cfg.CORSOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.AdvisorTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server listening",
		zap.String("port", cfg.Port),
		zap.Bool("db", cfg.EnableDB),
		zap.Bool("advisor", deps.advisor.Enabled()),
		zap.String("model", deps.advisor.Model()),
	)
	waitForShutdown(server, logger)
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		GinMode:       getEnv("GIN_MODE", gin.ReleaseMode),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		EnableDB:      strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		RedisURL:      os.Getenv("REDIS_URL"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", advisor.DefaultModel),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", advisor.DefaultBaseURL),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	var err error
	if cfg.AdvisorTimeout, err = parseDuration("ADVISOR_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.AdvisorCacheTTL, err = parseDuration("ADVISOR_CACHE_TTL", "24h"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func waitForShutdown(server *http.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
