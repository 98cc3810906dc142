package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"motivechat/internal/api"
	"motivechat/internal/auth"
	"motivechat/internal/config"
	"motivechat/internal/logger"
	"motivechat/internal/redis"
	"motivechat/internal/service/ai"
	"motivechat/internal/service/assistant"
	"motivechat/internal/service/quote"
	"motivechat/internal/storage"
)

func main() {
	cfgPath := os.Getenv("MOTIVECHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("info")
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Init(cfg.BasicConfig.LogLevel)

	dbType := os.Getenv("MOTIVECHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Info().Str("db_type", dbType).Msg("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Create necessary tables: users, chat_messages, daily_quotes
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create redis client")
		}
		defer rdb.Close()
	}

	ctx := context.Background()
	gateway, err := ai.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init ai responder")
	}

	assistantService, err := assistant.NewService(db, dbType, cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("init assistant service")
	}
	authService := auth.NewService([]byte(cfg.Auth.JWTSecret), cfg.TokenTTL())

	quoteCache, prewarmer := buildQuotes(ctx, cfg, db, dbType, rdb, gateway)

	deps := api.Deps{
		Accounts:      assistantService,
		Conversations: assistant.NewConversation(assistantService, gateway, cfg.MaxMessageChars()),
		Quotes:        quoteCache,
		Auth:          authService,
		DB:            db,
		Cache:         rdb,
	}
	agents := ai.NewRegistry()
	agents.Register(ai.AgentChat, ai.NewChatAgent(gateway))
	if cfg.Search.Enabled {
		searcher, err := ai.NewSearchAgentFromConfig(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("web search disabled")
		} else {
			deps.Searcher = searcher
			agents.Register(ai.AgentSearch, searcher)
		}
	}
	deps.Agents = agents
	handlers := api.NewHandler(deps)

	if cfg.BasicConfig.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(), gin.Recovery())
	handlers.RegisterRoutes(router)

	origins := cfg.BasicConfig.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           corsHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if prewarmer != nil {
		prewarmer.Start()
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen and serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AITimeout()+5*time.Second)
	defer cancel()
	if prewarmer != nil {
		prewarmer.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exiting")
}

func buildQuotes(ctx context.Context, cfg *config.Config, db *sql.DB, dbType string, rdb *redis.Client, responder ai.Responder) (*quote.Cache, *quote.Prewarmer) {
	var store quote.Store
	switch cfg.Quote.Store {
	case "redis":
		store = quote.NewRedisStore(rdb, quote.DefaultRedisTTL)
	case "memory":
		store = quote.NewMemoryStore()
	default:
		store = quote.NewSQLStore(db, dbType)
	}

	var curated []string
	if cfg.Quote.CuratedPath != "" {
		loaded, err := quote.LoadCurated(ctx, cfg.Quote.CuratedPath)
		if err != nil {
			log.Warn().Err(err).Msg("curated quotes unavailable, using built-in list")
		} else {
			curated = loaded
		}
	}

	cache := quote.NewCache(store, responder, quote.Options{
		Scope:    cfg.Quote.Scope,
		Location: cfg.QuoteLocation(),
		Curated:  curated,
	})
	if cfg.Quote.Scope != quote.ScopeGlobal {
		return cache, nil
	}
	prewarmer, err := quote.NewPrewarmer(cache, cfg.Quote.PrewarmCron)
	if err != nil {
		log.Fatal().Err(err).Msg("init quote prewarmer")
	}
	return cache, prewarmer
}
