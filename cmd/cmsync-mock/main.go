// Command cmsync-mock serves the in-memory dashboard backend for local
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/cmsync/internal/mockbackend"
	"github.com/MrEthical07/cmsync/session"
)

func main() {
	var (
		addr     = flag.String("addr", ":5000", "listen address")
		secret   = flag.String("secret", os.Getenv("CMSYNC_MOCK_SECRET"), "HS256 signing secret; random when empty")
		tokenTTL = flag.Duration("token-ttl", mockbackend.DefaultTokenTTL, "issued token lifetime")
		latency  = flag.Duration("latency", 0, "delay added to every request")
		email    = flag.String("seed-email", "admin@example.com", "seeded admin email; empty to skip")
		password = flag.String("seed-password", "admin-password", "seeded admin password")
		debug    = flag.Bool("debug", false, "log every request")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv, err := mockbackend.New(mockbackend.Config{
		Secret:   []byte(*secret),
		TokenTTL: *tokenTTL,
		Latency:  *latency,
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock backend: %v\n", err)
		os.Exit(1)
	}

	if *email != "" {
		u, err := srv.AddUser(session.User{Email: *email, Name: "Admin", Role: session.RoleAdmin}, *password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed user: %v\n", err)
			os.Exit(1)
		}
		logger.Info("seeded admin", "email", u.Email, "id", u.ID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(*addr) }()
	logger.Info("mock backend listening", "addr", *addr)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			os.Exit(1)
		}
	}
}
