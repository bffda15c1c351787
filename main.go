package main

import (
	"context"
	"os"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todogenie-api/api"
	"todogenie-api/domain"
	"todogenie-api/llm"
	"todogenie-api/storage"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, store.DB()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	cancel()

	model := llm.New(cfg.Model, logger)
	if !model.Configured() {
		logger.Warn("GEMINI_API_KEY not set; AI endpoints will report a configuration error")
	}

	var translationStore domain.TranslationStore = store
	var lease *storage.RedisLease
	if cfg.RedisConn != "" {
		rc := redis.NewClient(storage.ParseRedisOptions(cfg.RedisConn))
		translationStore = storage.NewCache(store, rc, cfg.CacheTTL)
		lease = storage.NewRedisLease(rc, cfg.LeaseTTL)
	}
	translations := domain.NewTranslationService(translationStore, model, logger)
	if lease != nil {
		translations.WithLease(lease, cfg.LeaseWait)
	}

	var auth *api.Auth
	if cfg.JWTSecret != "" {
		auth = api.NewSecretAuth([]byte(cfg.JWTSecret), cfg.JWTAudience, cfg.JWTIssuer)
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewJWKSAuth(jwks, cfg.JWTAudience, cfg.JWTIssuer, 0)
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(api.RequestPreamble(cfg.AllowedOrigins))
	e.Use(echoprometheus.NewMiddleware("todogenie"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Subtasks:     domain.NewSubtaskService(store, model, logger),
		Translations: translations,
		Auth:         auth,
		Store:        store,
	}, logger)

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}
