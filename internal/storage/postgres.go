package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Postgres is the PostgreSQL backend. A pgx pool lets concurrent requests
// share a bounded set of connections.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connStr and runs migrations.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id BIGSERIAL PRIMARY KEY,
			description TEXT NOT NULL,
			category TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			date DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_owner_created ON expenses (owner_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := p.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases all pool connections.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// CreateUser inserts u. A duplicate name or email yields ErrConflict.
func (p *Postgres) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, password_hash, created_at`,
		u.Name, u.Email, u.PasswordHash, u.CreatedAt,
	)
	created, err := scanPgUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("create user %q: %w", u.Name, ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// GetUserByID retrieves a user by ID.
func (p *Postgres) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE id = $1`, id)
	return scanPgUser(row)
}

// GetUserByName retrieves a user by name.
func (p *Postgres) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE name = $1`, name)
	return scanPgUser(row)
}

// UserExists reports whether the name or email is taken.
func (p *Postgres) UserExists(ctx context.Context, name, email string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE name = $1 OR email = $2)`, name, email,
	).Scan(&exists)
	return exists, err
}

// DeleteUser removes a user and cascades to their expenses.
func (p *Postgres) DeleteUser(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

// UserCount returns the number of users.
func (p *Postgres) UserCount(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateExpense inserts e and sets its ID.
func (p *Postgres) CreateExpense(ctx context.Context, e *models.Expense) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO expenses (description, category, amount, date, created_at, updated_at, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.Description, e.Category, e.Amount, e.Date, e.CreatedAt, e.UpdatedAt, e.OwnerID,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// GetExpense retrieves a single expense by ID.
func (p *Postgres) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	return getPgExpense(ctx, p.pool, id, "")
}

// UpdateExpense locks the row, hands it to fn and persists the result.
func (p *Postgres) UpdateExpense(ctx context.Context, id int64, fn ExpenseFunc) (*models.Expense, error) {
	var updated *models.Expense
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		e, err := getPgExpense(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE expenses SET description = $1, category = $2, amount = $3, updated_at = $4 WHERE id = $5`,
			e.Description, e.Category, e.Amount, e.UpdatedAt, e.ID,
		)
		if err != nil {
			return fmt.Errorf("update expense %d: %w", id, err)
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteExpense locks the row, runs check and removes it.
func (p *Postgres) DeleteExpense(ctx context.Context, id int64, check ExpenseFunc) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		e, err := getPgExpense(ctx, tx, id, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := check(e); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete expense %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("expense %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// ListExpenses returns the owner's expenses created at or after since.
func (p *Postgres) ListExpenses(ctx context.Context, ownerID int64, since time.Time) ([]models.Expense, error) {
	query := `SELECT id, description, category, amount, date, created_at, updated_at, owner_id
		FROM expenses WHERE owner_id = $1`
	args := []any{ownerID}
	if !since.IsZero() {
		query += ` AND created_at >= $2`
		args = append(args, since)
	}
	query += ` ORDER BY id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses for user %d: %w", ownerID, err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanPgExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

type pgQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPgExpense(ctx context.Context, q pgQueryRower, id int64, lock string) (*models.Expense, error) {
	row := q.QueryRow(ctx,
		`SELECT id, description, category, amount, date, created_at, updated_at, owner_id
		FROM expenses WHERE id = $1 `+lock,
		id,
	)
	e, err := scanPgExpense(row)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	return e, err
}

func scanPgUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanPgExpense(row rowScanner) (*models.Expense, error) {
	var e models.Expense
	err := row.Scan(&e.ID, &e.Description, &e.Category, &e.Amount, &e.Date, &e.CreatedAt, &e.UpdatedAt, &e.OwnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
