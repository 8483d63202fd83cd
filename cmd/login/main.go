// Command login is a terminal client for the auth service: it signs the user
// in through the Google redirect flow, persists the resulting tokens under
// the user's home directory, and prints who is signed in.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/markhive/go-auth/authclient"
	"github.com/markhive/go-auth/internal/config"
	"github.com/markhive/go-auth/session"
	"github.com/markhive/go-auth/tokenstore"
	"github.com/rs/zerolog"
)

const loginTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	boundary, err := buildBoundary(logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	boundary.Initialize(ctx)
	if boundary.Gate() == session.DecisionAllow {
		printUser(boundary)
		return nil
	}

	return loginFlow(ctx, boundary, logger)
}

func buildBoundary(logger zerolog.Logger) (*session.Boundary, error) {
	client, err := authclient.New(config.GetEnv("AUTH_BASE_URL", "http://localhost:8080"))
	if err != nil {
		return nil, err
	}

	store, err := tokenstore.New(tokenstore.WithFile(tokenFilePath()))
	if err != nil {
		return nil, err
	}

	controller, err := session.NewController(client, store, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return session.NewBoundary(controller)
}

func loginFlow(ctx context.Context, boundary *session.Boundary, logger zerolog.Logger) error {
	callbackServer := session.NewCallbackServer(callbackPort())
	redirectURI, err := callbackServer.Start(ctx)
	if err != nil {
		return err
	}
	defer callbackServer.Stop()

	authURL, err := boundary.Login(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Opening browser for sign-in (redirect: %s)\n", redirectURI)
	if err := session.OpenBrowser(authURL); err != nil {
		logger.Warn().Err(err).Msg("Could not open browser automatically")
		fmt.Printf("Visit this URL to sign in:\n\n  %s\n\n", authURL)
	}

	result, err := callbackServer.WaitForCallback(ctx)
	if err != nil {
		return err
	}
	if result.IsError() {
		return fmt.Errorf("identity provider returned %q: %s", result.Error, result.ErrorDescription)
	}

	if err := boundary.HandleCallback(ctx, result.Code, result.State); err != nil {
		return err
	}

	printUser(boundary)
	return nil
}

func printUser(boundary *session.Boundary) {
	if user := boundary.CurrentUser(); user != nil {
		fmt.Printf("Signed in as %s <%s>\n", user.Name, user.Email)
	}
}

func tokenFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".markhive", "tokens.json")
}

func callbackPort() int {
	port, err := strconv.Atoi(config.GetEnv("CALLBACK_PORT", "3000"))
	if err != nil {
		return 3000
	}
	return port
}
