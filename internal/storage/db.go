package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a SQLite sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}

	// A single connection serializes transactions and keeps ":memory:"
	// databases from splitting across pool connections.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (db *DB) migrate() error {
	migrations := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			amount REAL NOT NULL,
			date TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_owner_created ON expenses (owner_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// CreateUser inserts u and returns the stored row. A duplicate name or email
// yields ErrConflict.
func (db *DB) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		u.Name, u.Email, u.PasswordHash, u.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %q: %w", u.Name, ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?",
		id,
	)
	return scanUser(row)
}

// GetUserByName retrieves a user by name. Matching is case-sensitive.
func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, email, password_hash, created_at FROM users WHERE name = ?",
		name,
	)
	return scanUser(row)
}

// UserExists reports whether a user with the given name or email exists.
func (db *DB) UserExists(ctx context.Context, name, email string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE name = ? OR email = ?)",
		name, email,
	).Scan(&exists)
	return exists, err
}

// DeleteUser removes a user and, through the foreign key, all their expenses.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return checkAffected(result, "user", id)
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateExpense inserts e and sets its ID.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO expenses (description, category, amount, date, created_at, updated_at, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Description, e.Category, e.Amount, e.Date.Format(models.DateLayout),
		e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano(), e.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	return getExpense(ctx, db.conn, id)
}

// UpdateExpense loads the expense, passes it to fn and writes back whatever
// fn left in it, all within one transaction.
func (db *DB) UpdateExpense(ctx context.Context, id int64, fn ExpenseFunc) (*models.Expense, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	e, err := getExpense(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE expenses SET description = ?, category = ?, amount = ?, updated_at = ? WHERE id = ?",
		e.Description, e.Category, e.Amount, e.UpdatedAt.UnixNano(), e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update expense %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteExpense loads the expense, runs check and deletes the row if check
// passes, all within one transaction.
func (db *DB) DeleteExpense(ctx context.Context, id int64, check ExpenseFunc) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	e, err := getExpense(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := check(e); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if err := checkAffected(result, "expense", id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListExpenses returns the owner's expenses created at or after since.
// A zero since applies no lower bound.
func (db *DB) ListExpenses(ctx context.Context, ownerID int64, since time.Time) ([]models.Expense, error) {
	query := `SELECT id, description, category, amount, date, created_at, updated_at, owner_id
		FROM expenses WHERE owner_id = ?`
	args := []any{ownerID}
	if !since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, since.UnixNano())
	}
	query += " ORDER BY id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}

	return expenses, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getExpense(ctx context.Context, q queryRower, id int64) (*models.Expense, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, description, category, amount, date, created_at, updated_at, owner_id
		FROM expenses WHERE id = ?`,
		id,
	)
	e, err := scanExpense(row)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	return e, err
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = time.Unix(0, createdAt)
	return &u, nil
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var e models.Expense
	var date string
	var createdAt, updatedAt int64
	err := row.Scan(&e.ID, &e.Description, &e.Category, &e.Amount, &date, &createdAt, &updatedAt, &e.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	e.Date, err = time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("expense %d: bad date %q: %w", e.ID, date, err)
	}
	e.CreatedAt = time.Unix(0, createdAt)
	e.UpdatedAt = time.Unix(0, updatedAt)
	return &e, nil
}

func checkAffected(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"))
}
