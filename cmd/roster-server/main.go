package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"

	"uk.co.calderbeck.roster/internal/accountstore"
	"uk.co.calderbeck.roster/internal/boot"
	"uk.co.calderbeck.roster/internal/credential"
	"uk.co.calderbeck.roster/internal/handlers"
	"uk.co.calderbeck.roster/internal/mail"
	"uk.co.calderbeck.roster/internal/service/account"
	"uk.co.calderbeck.roster/internal/service/session"
)

func main() {
	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	store, err := accountstore.New(config)
	if err != nil {
		log.Fatalf("opening account store: %+v", err)
	}
	defer store.Close()

	privateKey, keyID, err := session.LoadOrCreateKey(path.Join(config.DataDirectory(), "session.jwk"), config.SecretKey)
	if err != nil {
		log.Fatalf("loading signing key: %+v", err)
	}

	hasher := credential.NewBcryptHasher(config.Auth.SaltRounds)
	sender := mail.NewLogSender(config.BaseURL)
	accounts := account.New(config, store, hasher, sender)
	sessions := session.New(privateKey, keyID, config.SessionTTL())

	server := echo.New()
	server.Use(middleware.BodyLimit("1M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("roster"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(log.INFO)

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization}
	server.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     strings.Split(config.Server.Origins, ","),
		AllowHeaders:     headers,
		AllowCredentials: true,
	}))

	server.POST("/accounts", handlers.Register(accounts))
	// the mailed link arrives as a GET, API clients use POST
	server.GET("/accounts/confirm", handlers.ConfirmEmail(accounts))
	server.POST("/accounts/confirm", handlers.ConfirmEmail(accounts))
	server.PUT("/accounts/password", handlers.ResetPassword(accounts, sessions))
	server.PUT("/accounts/email", handlers.ChangeEmail(accounts, sessions))
	server.POST("/sessions", handlers.Login(accounts, sessions))
	server.GET("/.well-known/jwks.json", handlers.JWKS(sessions))

	go func() {
		metrics := echo.New()
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(":" + config.Server.MetricsPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(":" + config.Server.Port); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Logger.Fatal(err)
	}
}
