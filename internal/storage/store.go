// Package storage persists users and expenses.
//
// Two backends share the same method set: DB (SQLite, the default) and
// Postgres. Update and delete of an expense run their read, caller-supplied
// check and write inside a single transaction.
package storage

import (
	"errors"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("already exists")
)

// ExpenseFunc inspects or mutates an expense inside a store transaction.
// Returning an error aborts the transaction and is passed through unchanged.
type ExpenseFunc func(e *models.Expense) error

type rowScanner interface {
	Scan(dest ...any) error
}
