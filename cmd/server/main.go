package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/markhive/go-auth/googleauth"
	"github.com/markhive/go-auth/internal/config"
	"github.com/markhive/go-auth/server"
	"github.com/markhive/go-auth/token"
	"github.com/markhive/go-auth/token/redisrepo"
	tokenrepofake "github.com/markhive/go-auth/token/repofake"
	fakeuserrepo "github.com/markhive/go-auth/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := newLogger(c)
	displayAppname(c.GetAppName())

	handler, err := buildServer(c, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(c config.Config, logger zerolog.Logger) (*server.Server, error) {
	userRepo := fakeuserrepo.NewFakeUserRepo()
	refreshRepo := refreshTokenRepo(c, logger)

	tokenManager, err := token.New(refreshRepo, userRepo, c.GetJWTSecret(),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithIssuer(c.GetBaseURL()))
	if err != nil {
		return nil, fmt.Errorf("token.New: %w", err)
	}

	google, err := googleauth.New(c, googleauth.NewInMemoryStateStore(c.GetStateTTL()))
	if err != nil {
		return nil, fmt.Errorf("googleauth.New: %w", err)
	}

	return server.New(c, userRepo, tokenManager, google, logger)
}

func refreshTokenRepo(c config.Config, logger zerolog.Logger) token.RefreshTokenRepo {
	addr := c.GetRedisAddr()
	if addr == "" {
		logger.Info().Msg("REDIS_ADDR not set, using in-memory refresh token storage")
		return tokenrepofake.NewFakeRefreshTokenRepo()
	}
	logger.Info().Str("addr", addr).Msg("Using redis refresh token storage")
	return redisrepo.New(redis.NewClient(&redis.Options{Addr: addr}))
}

func newLogger(c config.EnvConfig) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if c.GetEnv() == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
