package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"
	"github.com/Galganeq/Expense-Tracker-API/internal/storage"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Auth registers users, logs them in and resolves tokens back to users.
type Auth struct {
	store  Store
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuth creates an Auth service.
func NewAuth(store Store, hasher PasswordHasher, tokens TokenIssuer) *Auth {
	return &Auth{store: store, hasher: hasher, tokens: tokens, now: time.Now}
}

// Register creates a user and returns a token for it. A name or email that
// is already taken yields ErrConflict.
func (a *Auth) Register(ctx context.Context, name, email, password string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return "", fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}

	exists, err := a.store.UserExists(ctx, name, email)
	if err != nil {
		return "", fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return "", ErrConflict
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	// The unique constraints catch a concurrent registration that slipped
	// past the existence check.
	user, err := a.store.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    a.now(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	return a.issue(user.ID)
}

// Login checks the credentials and returns a fresh token. An unknown name and
// a wrong password both yield ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, name, password string) (string, error) {
	user, err := a.store.GetUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Pay the same hashing cost as a wrong password.
			a.hasher.Verify(password, a.unknownUserHash())
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if !a.hasher.Verify(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return a.issue(user.ID)
}

// Authenticate validates token and loads the user it was issued for.
func (a *Auth) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := a.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d no longer exists", ErrUnauthenticated, id)
		}
		return nil, fmt.Errorf("lookup user %d: %w", id, err)
	}
	return user, nil
}

// unknownUserHash is a hash computed once with the configured hasher, so
// verifying against it costs the same as verifying a real user's hash.
func (a *Auth) unknownUserHash() string {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher.Hash("unknown-user-password")
		if err != nil {
			log.Printf("Failed to compute placeholder hash: %v", err)
			return
		}
		a.dummyHash = hash
	})
	return a.dummyHash
}

func (a *Auth) issue(userID int64) (string, error) {
	token, err := a.tokens.Issue(userID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
