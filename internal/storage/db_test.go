package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// testStore is the method set both backends provide.
type testStore interface {
	Close() error
	CreateUser(ctx context.Context, u models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	UserExists(ctx context.Context, name, email string) (bool, error)
	DeleteUser(ctx context.Context, id int64) error
	UserCount(ctx context.Context) (int, error)
	CreateExpense(ctx context.Context, e *models.Expense) error
	GetExpense(ctx context.Context, id int64) (*models.Expense, error)
	UpdateExpense(ctx context.Context, id int64, fn ExpenseFunc) (*models.Expense, error)
	DeleteExpense(ctx context.Context, id int64, check ExpenseFunc) error
	ListExpenses(ctx context.Context, ownerID int64, since time.Time) ([]models.Expense, error)
}

var (
	_ testStore = (*DB)(nil)
	_ testStore = (*Postgres)(nil)
)

// StoreTestSuite runs the same checks against any backend.
type StoreTestSuite struct {
	suite.Suite
	open  func(t *testing.T) testStore
	store testStore
	ctx   context.Context
	alice *models.User
	bob   *models.User
}

// SetupTest runs before each test
func (suite *StoreTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = suite.open(suite.T())
	suite.alice = suite.mustCreateUser("alice", "alice@x.com")
	suite.bob = suite.mustCreateUser("bob", "bob@x.com")
}

// TearDownTest runs after each test
func (suite *StoreTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func (suite *StoreTestSuite) mustCreateUser(name, email string) *models.User {
	u, err := suite.store.CreateUser(suite.ctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: "hash-" + name,
	})
	require.NoError(suite.T(), err, "failed to create user %s", name)
	return u
}

// baseTime is truncated to microseconds so both backends round-trip it exactly.
func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (suite *StoreTestSuite) mustCreateExpense(owner int64, desc string, createdAt time.Time) *models.Expense {
	e := &models.Expense{
		Description: desc,
		Category:    "food",
		Amount:      3.5,
		Date:        time.Date(createdAt.Year(), createdAt.Month(), createdAt.Day(), 0, 0, 0, 0, time.UTC),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		OwnerID:     owner,
	}
	require.NoError(suite.T(), suite.store.CreateExpense(suite.ctx, e), "failed to create expense: %s", desc)
	require.NotZero(suite.T(), e.ID)
	return e
}

func (suite *StoreTestSuite) TestCreateUser() {
	got, err := suite.store.GetUserByName(suite.ctx, "alice")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.alice.ID, got.ID)
	assert.Equal(suite.T(), "alice@x.com", got.Email)
	assert.Equal(suite.T(), "hash-alice", got.PasswordHash)
	assert.False(suite.T(), got.CreatedAt.IsZero())

	byID, err := suite.store.GetUserByID(suite.ctx, suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "bob", byID.Name)

	count, err := suite.store.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)
}

func (suite *StoreTestSuite) TestGetUserNotFound() {
	_, err := suite.store.GetUserByName(suite.ctx, "nobody")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.store.GetUserByName(suite.ctx, "Alice")
	assert.ErrorIs(suite.T(), err, ErrNotFound, "names are case-sensitive")

	_, err = suite.store.GetUserByID(suite.ctx, 9999)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *StoreTestSuite) TestCreateUserUniqueConstraints() {
	_, err := suite.store.CreateUser(suite.ctx, models.User{Name: "alice", Email: "other@x.com", PasswordHash: "h"})
	assert.ErrorIs(suite.T(), err, ErrConflict, "duplicate name")

	_, err = suite.store.CreateUser(suite.ctx, models.User{Name: "carol", Email: "alice@x.com", PasswordHash: "h"})
	assert.ErrorIs(suite.T(), err, ErrConflict, "duplicate email")

	count, err := suite.store.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)
}

func (suite *StoreTestSuite) TestUserExists() {
	tests := []struct {
		name, email string
		want        bool
	}{
		{"alice", "new@x.com", true},
		{"new", "alice@x.com", true},
		{"new", "new@x.com", false},
	}
	for _, tt := range tests {
		got, err := suite.store.UserExists(suite.ctx, tt.name, tt.email)
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), tt.want, got, "UserExists(%q, %q)", tt.name, tt.email)
	}
}

func (suite *StoreTestSuite) TestCreateAndGetExpense() {
	now := baseTime()
	e := suite.mustCreateExpense(suite.alice.ID, "coffee", now)

	got, err := suite.store.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "coffee", got.Description)
	assert.Equal(suite.T(), "food", got.Category)
	assert.Equal(suite.T(), 3.5, got.Amount)
	assert.Equal(suite.T(), suite.alice.ID, got.OwnerID)
	assert.Equal(suite.T(), e.Date.Format(models.DateLayout), got.Date.Format(models.DateLayout))
	assert.True(suite.T(), now.Equal(got.CreatedAt), "created_at round trip")
	assert.True(suite.T(), now.Equal(got.UpdatedAt), "updated_at round trip")

	_, err = suite.store.GetExpense(suite.ctx, e.ID+100)
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *StoreTestSuite) TestUpdateExpense() {
	now := baseTime()
	e := suite.mustCreateExpense(suite.alice.ID, "coffee", now)

	later := now.Add(time.Minute)
	updated, err := suite.store.UpdateExpense(suite.ctx, e.ID, func(e *models.Expense) error {
		e.Amount = 42
		e.UpdatedAt = later
		return nil
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 42.0, updated.Amount)

	got, err := suite.store.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 42.0, got.Amount)
	assert.Equal(suite.T(), "coffee", got.Description)
	assert.True(suite.T(), later.Equal(got.UpdatedAt))
	assert.True(suite.T(), now.Equal(got.CreatedAt), "created_at must not change")
}

func (suite *StoreTestSuite) TestUpdateExpenseAbortedByCallback() {
	e := suite.mustCreateExpense(suite.alice.ID, "coffee", baseTime())
	denied := errors.New("denied")

	_, err := suite.store.UpdateExpense(suite.ctx, e.ID, func(e *models.Expense) error {
		e.Amount = 99
		return denied
	})
	assert.ErrorIs(suite.T(), err, denied)

	got, err := suite.store.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 3.5, got.Amount, "aborted update must not persist")
}

func (suite *StoreTestSuite) TestUpdateExpenseNotFound() {
	called := false
	_, err := suite.store.UpdateExpense(suite.ctx, 12345, func(*models.Expense) error {
		called = true
		return nil
	})
	assert.ErrorIs(suite.T(), err, ErrNotFound)
	assert.False(suite.T(), called)
}

func (suite *StoreTestSuite) TestDeleteExpense() {
	e := suite.mustCreateExpense(suite.alice.ID, "coffee", baseTime())

	err := suite.store.DeleteExpense(suite.ctx, e.ID, func(*models.Expense) error { return nil })
	require.NoError(suite.T(), err)

	_, err = suite.store.GetExpense(suite.ctx, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	err = suite.store.DeleteExpense(suite.ctx, e.ID, func(*models.Expense) error { return nil })
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *StoreTestSuite) TestDeleteExpenseAbortedByCheck() {
	e := suite.mustCreateExpense(suite.alice.ID, "coffee", baseTime())
	denied := errors.New("denied")

	err := suite.store.DeleteExpense(suite.ctx, e.ID, func(*models.Expense) error { return denied })
	assert.ErrorIs(suite.T(), err, denied)

	_, err = suite.store.GetExpense(suite.ctx, e.ID)
	assert.NoError(suite.T(), err, "expense must survive a failed check")
}

func (suite *StoreTestSuite) TestListExpensesByOwner() {
	now := baseTime()
	suite.mustCreateExpense(suite.alice.ID, "coffee", now)
	suite.mustCreateExpense(suite.alice.ID, "bus", now)
	suite.mustCreateExpense(suite.bob.ID, "rent", now)

	result, err := suite.store.ListExpenses(suite.ctx, suite.alice.ID, time.Time{})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), result, 2, "expected only alice's expenses")
	for _, e := range result {
		assert.Equal(suite.T(), suite.alice.ID, e.OwnerID)
	}

	empty, err := suite.store.ListExpenses(suite.ctx, 9999, time.Time{})
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), empty)
	assert.Empty(suite.T(), empty)
}

func (suite *StoreTestSuite) TestListExpensesSince() {
	now := baseTime()
	cutoff := now.Add(-7 * 24 * time.Hour)

	testExpenses := []struct {
		description string
		createdAt   time.Time
	}{
		{"recent", now},
		{"boundary", cutoff},
		{"just before", cutoff.Add(-time.Microsecond)},
		{"old", now.Add(-60 * 24 * time.Hour)},
	}
	for _, exp := range testExpenses {
		suite.mustCreateExpense(suite.alice.ID, exp.description, exp.createdAt)
	}

	expenses, err := suite.store.ListExpenses(suite.ctx, suite.alice.ID, cutoff)
	require.NoError(suite.T(), err)

	var got []string
	for _, e := range expenses {
		got = append(got, e.Description)
	}
	assert.ElementsMatch(suite.T(), []string{"recent", "boundary"}, got)
}

func (suite *StoreTestSuite) TestDeleteUserCascades() {
	e := suite.mustCreateExpense(suite.alice.ID, "coffee", baseTime())
	other := suite.mustCreateExpense(suite.bob.ID, "rent", baseTime())

	require.NoError(suite.T(), suite.store.DeleteUser(suite.ctx, suite.alice.ID))

	_, err := suite.store.GetExpense(suite.ctx, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expenses must be deleted with their owner")

	_, err = suite.store.GetExpense(suite.ctx, other.ID)
	assert.NoError(suite.T(), err)

	_, err = suite.store.GetUserByID(suite.ctx, suite.alice.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	assert.ErrorIs(suite.T(), suite.store.DeleteUser(suite.ctx, suite.alice.ID), ErrNotFound)
}

func (suite *StoreTestSuite) TestCreateExpenseRequiresOwner() {
	e := &models.Expense{
		Description: "orphan",
		Category:    "other",
		Date:        time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		OwnerID:     9999,
	}
	assert.Error(suite.T(), suite.store.CreateExpense(suite.ctx, e), "foreign key must reject unknown owner")
}

func (suite *StoreTestSuite) TestConcurrentUpdates() {
	e := suite.mustCreateExpense(suite.alice.ID, "counter", baseTime())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.store.UpdateExpense(suite.ctx, e.ID, func(e *models.Expense) error {
				e.Amount++
				return nil
			})
			assert.NoError(suite.T(), err)
		}()
	}
	wg.Wait()

	got, err := suite.store.GetExpense(suite.ctx, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 13.5, got.Amount, "read-modify-write must not lose updates")
}

// Test suite runners
func TestSQLiteSuite(t *testing.T) {
	suite.Run(t, &StoreTestSuite{
		open: func(t *testing.T) testStore {
			db, err := NewDB(":memory:")
			require.NoError(t, err, "failed to create test database")
			return db
		},
	})
}

func TestPostgresSuite(t *testing.T) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	suite.Run(t, &StoreTestSuite{
		open: func(t *testing.T) testStore {
			ctx := context.Background()
			p, err := NewPostgres(ctx, connStr)
			require.NoError(t, err, "failed to connect to test database")
			_, err = p.pool.Exec(ctx, `TRUNCATE users, expenses RESTART IDENTITY CASCADE`)
			require.NoError(t, err, "failed to reset test database")
			return p
		},
	})
}

func TestNewDBFileBacked(t *testing.T) {
	path := t.TempDir() + "/expenses.db"

	db, err := NewDB(path)
	require.NoError(t, err)
	_, err = db.CreateUser(context.Background(), models.User{Name: "a", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening runs migrations again and keeps the data.
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.UserCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
