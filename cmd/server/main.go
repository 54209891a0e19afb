package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ideabox/internal/auth"
	"ideabox/internal/config"
	"ideabox/internal/db"
	"ideabox/internal/router"
	"ideabox/internal/services"
	"ideabox/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	gin.SetMode(cfg.GinMode)
	log.Printf("Config: %s", cfg.DebugString())

	// Initialize Database
	db.Init(cfg)
	orphanID, err := db.OrphanOwnerID(db.DB, cfg.OrphanOwnerEmail)
	if err != nil {
		log.Fatalf("Failed to load placeholder owner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 有 REDIS_URL 时会话、锁和计票缓存都放 Redis, 否则留在进程内 (仅限单实例)
	var (
		store  session.Store
		locker services.Locker
		cache  services.AggregateCache
	)
	if cfg.RedisURL != "" {
		client, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		store = session.NewRedisStore(client)
		locker = services.NewRedisLocker(client)
		cache = services.NewRedisAggregateCache(client, 10*time.Minute)
		log.Println("Redis connection established")
	} else {
		memStore, err := session.NewMemoryStore(10000)
		if err != nil {
			log.Fatal(err)
		}
		localCache, err := services.NewLocalAggregateCache(10000, 10*time.Minute)
		if err != nil {
			log.Fatal(err)
		}
		store, locker, cache = memStore, services.NewLocalLocker(), localCache
	}

	media, err := services.NewMediaStore(cfg.UploadDir, cfg.MaxUpload)
	if err != nil {
		log.Fatalf("Failed to prepare upload dir: %v", err)
	}

	// 计票推送 worker
	broker := services.NewAggregateBroker(cache)
	go broker.Run(ctx)

	deps := router.Deps{
		Sessions:    session.NewManager(auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), store),
		Broker:      broker,
		Votes:       services.NewVoteService(db.DB, locker, broker),
		Users:       services.NewUserService(db.DB, broker, media, orphanID),
		Ideas:       services.NewIdeaService(db.DB, broker, orphanID),
		Comments:    services.NewCommentService(db.DB, orphanID),
		Media:       services.NewMediaService(db.DB, media),
		Decisions:   services.NewDecisionService(db.DB, broker, media),
		Lookups:     services.NewLookupService(db.DB),
		Stats:       services.NewStatisticsService(db.DB),
		CORSOrigins: cfg.CORSOrigins,
		UploadDir:   media.Dir(),
		LoginPerMin: cfg.LoginPerMin,
	}

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUpload
	router.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Ideabox server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}
