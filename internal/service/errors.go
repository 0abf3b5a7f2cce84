// Package service holds the account and expense operations and the
// authorization rules around them.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"
	"github.com/Galganeq/Expense-Tracker-API/internal/storage"
)

var (
	// ErrConflict is returned when registering a name or email already in use.
	ErrConflict = errors.New("email/name was already registered")
	// ErrInvalidCredentials is returned by Login for an unknown name and for a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when a token cannot be resolved to a user.
	ErrUnauthenticated = errors.New("could not validate credentials")
	// ErrForbidden is returned when the caller does not own the expense.
	ErrForbidden = errors.New("you have no permission")
	// ErrNotFound is returned when the expense does not exist.
	ErrNotFound = errors.New("expense not found")
	// ErrInvalidInput is returned for missing or blank required fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the persistence the services need. storage.DB and
// storage.Postgres both implement it.
type Store interface {
	CreateUser(ctx context.Context, u models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	UserExists(ctx context.Context, name, email string) (bool, error)

	CreateExpense(ctx context.Context, e *models.Expense) error
	UpdateExpense(ctx context.Context, id int64, fn storage.ExpenseFunc) (*models.Expense, error)
	DeleteExpense(ctx context.Context, id int64, check storage.ExpenseFunc) error
	ListExpenses(ctx context.Context, ownerID int64, since time.Time) ([]models.Expense, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer issues and validates access tokens.
type TokenIssuer interface {
	Issue(subjectID int64) (string, error)
	Validate(token string) (int64, error)
}
