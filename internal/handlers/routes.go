package handlers

import "net/http"

// Routes registers every endpoint on a new ServeMux. Expense routes sit
// behind AuthMiddleware; health, register and login are public.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /login", h.Login)

	protected := func(fn http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(fn)
	}
	mux.Handle("POST /expense", protected(h.AddExpense))
	mux.Handle("POST /expenses", protected(h.AddExpense))
	mux.Handle("GET /expenses", protected(h.ListExpenses))
	mux.Handle("PUT /expenses/{id}", protected(h.UpdateExpense))
	mux.Handle("DELETE /expenses/{id}", protected(h.DeleteExpense))

	return mux
}
