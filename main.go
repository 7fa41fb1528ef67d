package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	apirest "github.com/chatlinkhq/chatlink/server/api/rest"
	"github.com/chatlinkhq/chatlink/server/api/sse"
	apows "github.com/chatlinkhq/chatlink/server/api/ws"
	"github.com/chatlinkhq/chatlink/server/audit"
	"github.com/chatlinkhq/chatlink/server/auth"
	"github.com/chatlinkhq/chatlink/server/cache"
	"github.com/chatlinkhq/chatlink/server/chat"
	"github.com/chatlinkhq/chatlink/server/config"
	dbadapter "github.com/chatlinkhq/chatlink/server/db"
	mw "github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/chatlinkhq/chatlink/server/model"
	"github.com/chatlinkhq/chatlink/server/notify"
	"github.com/chatlinkhq/chatlink/server/presence"
	"github.com/chatlinkhq/chatlink/server/scheduler"
	"github.com/chatlinkhq/chatlink/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Warn("security.jwt_secret is not set; signin will fail until it is configured")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Presence / Services ----
	reg := presence.NewRegistry(logger)
	defer reg.CloseAll()
	notifier := notify.New(reg, logger)
	authSvc := auth.NewService(db, c, cfg.Security, logger)
	socialSvc := social.NewService(db, notifier, reg, logger)
	chatSvc := chat.NewService(db, notifier, cfg.Chat.MaxMessageLen, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("presence_report", 5*time.Minute, func() {
		logger.Info("presence report", zap.Int("online", reg.Count()))
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(authSvc, auditSvc, logger)
	friendsH := apirest.NewFriendsHandler(socialSvc, auditSvc, logger)
	messagesH := apirest.NewMessagesHandler(chatSvc, logger)

	api := r.Group("/api/v1")
	{
		userG := api.Group("/user")
		userG.POST("/signup", authH.Signup)
		userG.POST("/signin", authH.Signin)
		userG.POST("/signout", mw.Auth(cfg.Security, c), authH.Signout)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(cfg.Security, c))
		friendsG.POST("/friend-request", friendsH.SendFriendRequest)
		friendsG.GET("/friend-requests", friendsH.ListFriendRequests)
		friendsG.POST("/friend-request/accept", friendsH.AcceptFriendRequest)
		friendsG.GET("/friends", friendsH.ListFriends)
		friendsG.GET("/search/:text", friendsH.Search)
		friendsG.POST("/send-message", messagesH.SendMessage)
		friendsG.GET("/messages/:user_id", messagesH.History)
	}

	// ---- WebSocket ----
	wsRouter := apows.NewRouter(logger)
	wsH := apows.NewHandler(db, authSvc, reg, pubsub, cfg.Security, wsRouter, logger)
	wsH.RegisterHandlers(wsRouter)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, authSvc, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
