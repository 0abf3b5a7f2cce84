package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Galganeq/Expense-Tracker-API/internal/auth"
	"github.com/Galganeq/Expense-Tracker-API/internal/models"
	"github.com/Galganeq/Expense-Tracker-API/internal/storage"

	"golang.org/x/term"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type userStore interface {
	UserExists(ctx context.Context, name, email string) (bool, error)
	CreateUser(ctx context.Context, u models.User) (*models.User, error)
	Close() error
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	name := fs.String("user", "", "User name")
	email := fs.String("email", "", "Email (defaults to <user>@localhost)")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dbPath := fs.String("db", "expenses.db", "Path to SQLite database file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <name> [-email <email>] [-password <password>] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}
	if *email == "" {
		*email = *name + "@localhost"
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // Print newline after password input
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	// Allow overriding db path via env var if not explicitly set via flag (flag default is used)
	if path := os.Getenv("DB_PATH"); path != "" && *dbPath == "expenses.db" {
		*dbPath = path
	}

	ctx := context.Background()
	db, err := openStore(ctx, *dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	exists, err := db.UserExists(ctx, *name, *email)
	if err != nil {
		return fmt.Errorf("failed to check existing users: %w", err)
	}
	if exists {
		return fmt.Errorf("user %s or email %s already exists", *name, *email)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := db.CreateUser(ctx, models.User{Name: *name, Email: *email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("user %s or email %s already exists", *name, *email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Name, user.ID)
	return nil
}

// openStore uses PostgreSQL when DATABASE_URL is set, SQLite otherwise.
func openStore(ctx context.Context, dbPath string) (userStore, error) {
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		return storage.NewPostgres(ctx, url)
	}
	return storage.NewDB(dbPath)
}

func readPassword(stdin io.Reader) (string, error) {
	// Check if stdin is a terminal
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
