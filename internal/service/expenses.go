package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"
	"github.com/Galganeq/Expense-Tracker-API/internal/storage"
)

// Window selects how far back List looks, measured on created_at.
type Window string

const (
	WindowAll         Window = ""
	WindowWeek        Window = "week"
	WindowMonth       Window = "month"
	WindowThreeMonths Window = "3month"
)

var windowSpans = map[Window]time.Duration{
	WindowWeek:        7 * 24 * time.Hour,
	WindowMonth:       30 * 24 * time.Hour,
	WindowThreeMonths: 91 * 24 * time.Hour,
}

// ParseWindow maps a query value to a Window. Unrecognized values mean no
// lower bound.
func ParseWindow(s string) Window {
	w := Window(s)
	if _, ok := windowSpans[w]; ok {
		return w
	}
	return WindowAll
}

// Cutoff returns the earliest created_at included by w, or the zero time
// when w has no lower bound.
func (w Window) Cutoff(now time.Time) time.Time {
	span, ok := windowSpans[w]
	if !ok {
		return time.Time{}
	}
	return now.Add(-span)
}

// Owns reports whether user is the owner of e.
func Owns(user *models.User, e *models.Expense) bool {
	return user != nil && e != nil && e.OwnerID == user.ID
}

// Expenses manages expense records on behalf of an authenticated caller.
type Expenses struct {
	store Store
	now   func() time.Time
}

// ExpensesOption configures Expenses.
type ExpensesOption func(*Expenses)

// WithExpensesClock overrides the time source.
func WithExpensesClock(now func() time.Time) ExpensesOption {
	return func(s *Expenses) { s.now = now }
}

// NewExpenses creates an Expenses service.
func NewExpenses(store Store, opts ...ExpensesOption) *Expenses {
	s := &Expenses{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records a new expense owned by caller, dated today.
func (s *Expenses) Add(ctx context.Context, caller *models.User, description, category string, amount float64) (*models.Expense, error) {
	if strings.TrimSpace(description) == "" || strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("%w: description and category are required", ErrInvalidInput)
	}

	now := s.now()
	e := &models.Expense{
		Description: description,
		Category:    category,
		Amount:      amount,
		Date:        time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		CreatedAt:   now,
		UpdatedAt:   now,
		OwnerID:     caller.ID,
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("add expense: %w", err)
	}
	return e, nil
}

// Update applies patch to the caller's expense and refreshes updated_at.
func (s *Expenses) Update(ctx context.Context, caller *models.User, id int64, patch models.ExpensePatch) (*models.Expense, error) {
	if blank(patch.Description) || blank(patch.Category) {
		return nil, fmt.Errorf("%w: description and category must not be blank", ErrInvalidInput)
	}

	e, err := s.store.UpdateExpense(ctx, id, func(e *models.Expense) error {
		if !Owns(caller, e) {
			return ErrForbidden
		}
		patch.Apply(e)
		e.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, translate(err, id)
	}
	return e, nil
}

// Delete permanently removes the caller's expense.
func (s *Expenses) Delete(ctx context.Context, caller *models.User, id int64) error {
	err := s.store.DeleteExpense(ctx, id, func(e *models.Expense) error {
		if !Owns(caller, e) {
			return ErrForbidden
		}
		return nil
	})
	if err != nil {
		return translate(err, id)
	}
	return nil
}

// List returns the caller's expenses recorded within window.
func (s *Expenses) List(ctx context.Context, caller *models.User, window Window) ([]models.Expense, error) {
	expenses, err := s.store.ListExpenses(ctx, caller.ID, window.Cutoff(s.now()))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func translate(err error, id int64) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: expense with id: %d does not exist", ErrNotFound, id)
	default:
		return fmt.Errorf("expense %d: %w", id, err)
	}
}

func blank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) == ""
}
