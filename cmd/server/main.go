package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Galganeq/Expense-Tracker-API/internal/auth"
	"github.com/Galganeq/Expense-Tracker-API/internal/config"
	"github.com/Galganeq/Expense-Tracker-API/internal/handlers"
	"github.com/Galganeq/Expense-Tracker-API/internal/models"
	"github.com/Galganeq/Expense-Tracker-API/internal/service"
	"github.com/Galganeq/Expense-Tracker-API/internal/storage"
)

// store is what the server needs from a storage backend.
type store interface {
	service.Store
	handlers.Pinger
	UserCount(ctx context.Context) (int, error)
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	hasher := auth.NewBcrypt()
	if err := seedAdmin(ctx, db, hasher, cfg); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	h := handlers.NewHandlers(
		service.NewAuth(db, hasher, tokens),
		service.NewExpenses(db),
		db,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s...", cfg.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(h *handlers.Handlers) http.Handler {
	mux := h.Routes()

	var handler http.Handler = mux
	handler = middleware.Recoverer(handler)
	handler = middleware.Logger(handler)
	handler = middleware.RealIP(handler)
	handler = middleware.RequestID(handler)
	return handler
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.DatabaseURL != "" {
		log.Println("Using PostgreSQL storage")
		return storage.NewPostgres(ctx, cfg.DatabaseURL)
	}
	log.Printf("Using SQLite storage at %s", cfg.DBPath)
	return storage.NewDB(cfg.DBPath)
}

// seedAdmin creates the configured admin user when the database has no users.
func seedAdmin(ctx context.Context, db store, hasher auth.Bcrypt, cfg *config.Config) error {
	if cfg.AdminUser == "" {
		return nil
	}

	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}
	user, err := db.CreateUser(ctx, models.User{
		Name:         cfg.AdminUser,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}
	log.Printf("Created admin user %s with ID %d", user.Name, user.ID)
	return nil
}
