package main

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	internalMiddleware "github.com/arkturian/share-proxy/internal/middleware"
	"github.com/arkturian/share-proxy/internal/server"
	"github.com/arkturian/share-proxy/pkg/config"
	"github.com/arkturian/share-proxy/pkg/logging"
)

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load configuration (flags, config file, environment)
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.Get()

	// Initialize structured logging
	if err := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	logging.Logger.Info("Structured logging initialized",
		zap.String("level", cfg.Logging.Level),
		zap.String("format", cfg.Logging.Format))

	// Per-instance identifier, exposed on /health?info=true
	instanceID := uuid.NewString()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Add global middleware
	e.Use(internalMiddleware.LoggerMiddleware())
	e.Use(internalMiddleware.RecoverMiddleware())
	e.Use(internalMiddleware.CORSMiddleware())

	// Initialize and start server
	srv, err := server.New(e, cfg, instanceID)
	if err != nil {
		logging.Logger.Fatal("Failed to initialize server", zap.Error(err))
	}
	logging.Logger.Info("Server initialized", zap.String("instance_id", instanceID))

	if err := srv.Start(); err != nil {
		logging.Logger.Fatal("Server error", zap.Error(err))
	}
}
