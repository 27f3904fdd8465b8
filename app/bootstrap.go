package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"budget-api/internal/auth"
	"budget-api/internal/budget"
	"budget-api/internal/category"
	"budget-api/internal/categorybudget"
	"budget-api/internal/db"
	"budget-api/internal/maintenance"
	"budget-api/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger("budget-api")

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	accessSecret, err := mustEnv("JWT_ACCESS_SECRET")
	if err != nil {
		return nil, err
	}
	refreshSecret, err := mustEnv("JWT_REFRESH_SECRET")
	if err != nil {
		return nil, err
	}
	resetSecret, err := mustEnv("RESET_TOKEN_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		ResetSecret:   resetSecret,
		AccessTTL:     envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTTL:    envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 7),
		ResetTTL:      envMinutesOrDefault("RESET_TOKEN_TTL_MINUTES", 60),
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, codec, logger)
	authHandler := auth.NewHandler(authService)
	cleanupHandler := maintenance.NewCleanupHandler(authRepo, logger, os.Getenv("CRON_SECRET"))

	budgetRepo := budget.NewRepository(database)
	budgetHandler := budget.NewHandler(budgetRepo)
	categoryRepo := category.NewRepository(database)
	categoryHandler := category.NewHandler(categoryRepo)
	categoryBudgetRepo := categorybudget.NewRepository(database)
	categoryBudgetHandler := categorybudget.NewHandler(categoryBudgetRepo, budgetRepo, categoryRepo)

	guard := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(codec, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", authHandler.Register)
	mux.HandleFunc("POST /login", authHandler.Login)
	mux.HandleFunc("POST /refresh", authHandler.Refresh)
	mux.Handle("POST /logout", guard(authHandler.Logout))
	mux.Handle("POST /logout-all", guard(authHandler.LogoutAll))
	mux.Handle("GET /me", guard(authHandler.Me))
	mux.Handle("GET /profile", guard(authHandler.Me))
	mux.Handle("POST /verify-email", guard(authHandler.VerifyEmail))
	mux.HandleFunc("POST /forgot-password", authHandler.ForgotPassword)
	mux.HandleFunc("POST /reset-password", authHandler.ResetPassword)

	mux.Handle("POST /api/budgets", guard(budgetHandler.Create))
	mux.Handle("GET /api/budgets", guard(budgetHandler.List))
	mux.Handle("GET /api/budgets/{id}", guard(budgetHandler.GetByID))
	mux.Handle("GET /api/budgets/period/{year}/{month}", guard(budgetHandler.GetByPeriod))
	mux.Handle("PUT /api/budgets/{id}", guard(budgetHandler.Update))
	mux.Handle("DELETE /api/budgets/{id}", guard(budgetHandler.Delete))

	mux.Handle("POST /api/categories", guard(categoryHandler.Create))
	mux.Handle("GET /api/categories", guard(categoryHandler.List))
	mux.Handle("GET /api/categories/search", guard(categoryHandler.Search))
	mux.Handle("DELETE /api/categories/{id}", guard(categoryHandler.Delete))

	mux.Handle("POST /api/category-budgets", guard(categoryBudgetHandler.Create))
	mux.Handle("GET /api/category-budgets/budget/{budgetId}", guard(categoryBudgetHandler.ListByBudget))
	mux.Handle("PUT /api/category-budgets/{id}", guard(categoryBudgetHandler.Update))
	mux.Handle("DELETE /api/category-budgets/{id}", guard(categoryBudgetHandler.Delete))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}
