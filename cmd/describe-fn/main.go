package main

import (
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskboard/ai"
	"taskboard/api"
	"taskboard/config"
)

func main() {
	if err := config.LoadEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("env: %v", err)
	}
	config.SetupLogging()

	timeout, err := config.Duration("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		log.Fatalf("invalid AI_TIMEOUT: %v", err)
	}
	// A missing key is reported per request, not at startup.
	describer := ai.NewChatDescriber(ai.ChatConfig{
		APIKey:   config.String("AI_SERVICE_API_KEY", ""),
		Endpoint: config.String("AI_ENDPOINT", ""),
		Model:    config.String("AI_MODEL", ""),
		Timeout:  timeout,
	})
	if !describer.Configured() {
		log.Warn("AI_SERVICE_API_KEY is not set")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.POST, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	api.RegisterFunction(e, describer)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}
