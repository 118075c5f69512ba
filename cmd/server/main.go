package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/scentcraft/printflow/internal/api/handlers"
	"github.com/scentcraft/printflow/internal/api/middleware"
	"github.com/scentcraft/printflow/internal/archive"
	"github.com/scentcraft/printflow/internal/config"
	"github.com/scentcraft/printflow/internal/core"
	"github.com/scentcraft/printflow/internal/db"
	"github.com/scentcraft/printflow/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	database := db.GetDB()

	sender := webhook.NewSender(webhook.Config{
		MaxRetries:  cfg.Webhooks.MaxRetries,
		RetryDelay:  cfg.Webhooks.RetryDelay,
		Timeout:     cfg.Webhooks.Timeout,
		WorkerCount: cfg.Webhooks.WorkerCount,
	})
	sender.Start()
	defer sender.Stop()

	queue := core.NewQueueManager(database)
	bridge := core.NewAgentSyncBridge(database, queue, sender, cfg.Agents.StaleAfter)
	actions := core.NewOperatorActions(database, queue, sender)
	reprints := core.NewReprintFactory(database)

	archiver, err := archive.NewArchiver(database, archive.Config{
		ArchivePath: cfg.Database.ArchivePath,
		ArchiveDays: cfg.Database.ArchiveDays,
	})
	if err != nil {
		log.Fatalf("Failed to initialize archiver: %v", err)
	}
	archiver.Start()
	defer archiver.Stop()

	monitor := core.NewPrinterMonitor(database, sender, cfg.Agents.StaleAfter, cfg.Agents.OfflineSweep)
	monitor.Start()
	defer monitor.Stop()

	auth, err := middleware.NewAuthMiddleware(database)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "printflow"})
	})

	router.POST("/api/auth/login", auth.LoginHandler)

	api := router.Group("/api")
	api.Use(auth.RequireAuth())
	{
		handlers.NewJobHandler(database, reprints, cfg.Uploads.AssetDir, cfg.Uploads.ComposedDir).RegisterRoutes(api)
		handlers.NewOperatorHandler(queue, actions).RegisterRoutes(api)
		handlers.NewPrinterHandler(bridge).RegisterRoutes(api)
		handlers.NewTemplateHandler().RegisterRoutes(api)

		admin := api.Group("")
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			admin.POST("/auth/register", auth.RegisterHandler)
			handlers.NewWebhookHandler().RegisterRoutes(admin)
			handlers.NewArchiveHandler(archiver).RegisterRoutes(admin)
		}
	}

	agent := router.Group("/api/agent")
	agent.Use(middleware.AgentAuth())
	{
		handlers.NewAgentHandler(bridge).RegisterRoutes(agent)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
