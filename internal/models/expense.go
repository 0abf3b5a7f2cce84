package models

import "time"

// DateLayout is the calendar-date format used for Expense.Date.
const DateLayout = "2006-01-02"

// Expense represents a financial expense record owned by a single user.
type Expense struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	OwnerID     int64     `json:"owner_id"`
}

// ExpensePatch holds a partial update. Nil fields keep their stored value.
type ExpensePatch struct {
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// Apply copies the provided fields onto e.
func (p ExpensePatch) Apply(e *Expense) {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
