package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"rps-backend/internal/app"
	"rps-backend/internal/config"
	"rps-backend/internal/db"
	"rps-backend/internal/handlers"
	"rps-backend/internal/router"
)

func main() {
	// Structured JSON logs in production, readable text otherwise
	if os.Getenv("LOG_FORMAT") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if err := config.AppConfig.Validate(); err != nil {
		log.Fatalf("❌ Invalid config: %v", err)
	}

	db.InitDB()

	container, err := app.InitializeContainer(context.Background())
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v", err)
	}
	defer container.Close()

	wagerHandler := handlers.NewWagerHandler(container.WagerService, container.ResolverService)
	r := router.SetupRouter(wagerHandler)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	logrus.WithField("addr", addr).Info("🚀 Wager engine listening")
	if err := r.Run(addr); err != nil {
		log.Fatalf("❌ Server exited: %v", err)
	}
}
