package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Galganeq/Expense-Tracker-API/internal/models"
	"github.com/Galganeq/Expense-Tracker-API/internal/service"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth     *service.Auth
	expenses *service.Expenses
	db       Pinger
}

// NewHandlers creates a new Handlers instance. db is checked by the health
// endpoint and may be nil.
func NewHandlers(auth *service.Auth, expenses *service.Expenses, db Pinger) *Handlers {
	return &Handlers{auth: auth, expenses: expenses, db: db}
}

// UserFromContext retrieves the authenticated user from the request context.
func UserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware requires a valid "Authorization: Bearer <token>" header and
// puts the resolved user into the request context.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthenticated(w)
			return
		}

		user, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, service.ErrUnauthenticated) {
				log.Printf("Authenticate error: %v", err)
				writeErr(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeUnauthenticated(w)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ExpenseResponse is the wire form of an expense.
type ExpenseResponse struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListResponse wraps the expenses returned by the list endpoint.
type ListResponse struct {
	Expenses []ExpenseResponse `json:"Expenses"`
}

func newExpenseResponse(e models.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID,
		Description: e.Description,
		Category:    e.Category,
		Amount:      e.Amount,
		Date:        e.Date.Format(models.DateLayout),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type addExpenseRequest struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Amount      *float64 `json:"amount"`
}

// Health reports whether the process is serving and its store is reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			log.Printf("Health check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Register handles user registration.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.auth.Register(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeServiceError(w, "Register", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Login handles credential login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.auth.Login(r.Context(), strings.TrimSpace(req.Name), req.Password)
	if err != nil {
		writeServiceError(w, "Login", err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// AddExpense records a new expense for the authenticated user.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount == nil {
		writeErr(w, http.StatusBadRequest, "amount is required")
		return
	}

	e, err := h.expenses.Add(r.Context(), UserFromContext(r.Context()), req.Description, req.Category, *req.Amount)
	if err != nil {
		writeServiceError(w, "AddExpense", err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseResponse(*e))
}

// UpdateExpense applies a partial update to one of the caller's expenses.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	var patch models.ExpensePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := h.expenses.Update(r.Context(), UserFromContext(r.Context()), id, patch)
	if err != nil {
		writeServiceError(w, "UpdateExpense", err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(*e))
}

// DeleteExpense removes one of the caller's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}

	if err := h.expenses.Delete(r.Context(), UserFromContext(r.Context()), id); err != nil {
		writeServiceError(w, "DeleteExpense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListExpenses returns the caller's expenses, optionally limited by ?last=.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	window := service.ParseWindow(r.URL.Query().Get("last"))

	expenses, err := h.expenses.List(r.Context(), UserFromContext(r.Context()), window)
	if err != nil {
		writeServiceError(w, "ListExpenses", err)
		return
	}

	resp := ListResponse{Expenses: make([]ExpenseResponse, 0, len(expenses))}
	for _, e := range expenses {
		resp.Expenses = append(resp.Expenses, newExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusNotFound, fmt.Sprintf("Expense with id: %s does not exist", raw))
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request payload")
	}
	return nil
}

// writeServiceError maps service errors to HTTP responses. Anything
// unexpected is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeErr(w, http.StatusBadRequest, "Email/Name was already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErr(w, http.StatusUnauthorized, "Invalid Credentials")
	case errors.Is(err, service.ErrUnauthenticated):
		writeUnauthenticated(w)
	case errors.Is(err, service.ErrForbidden):
		writeErr(w, http.StatusForbidden, "You have no permission")
	case errors.Is(err, service.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("%s error: %v", op, err)
		writeErr(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeErr(w, http.StatusUnauthorized, "Could not validate credentials")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
