package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/alibot/reviewdash/internal/config"
	"github.com/alibot/reviewdash/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)

	svc := bootstrap(cfg)
	defer svc.shutdown()

	r := gin.New()
	registerRoutes(r, svc)

	// Run the server in the background so signals can trigger a clean stop.
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", addr)
		errCh <- r.Run(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatalf("Server error: %v", err)
	case sig := <-quit:
		logger.Infof("Received signal %v, shutting down", sig)
	}
}
