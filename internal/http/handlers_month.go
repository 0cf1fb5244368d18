package http

import (
	"net/http"

	"prorata/internal/core"
	"prorata/internal/services"
)

func (s *Server) handleMonthBalance(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	balance, err := s.balance.CalculateBalance(r.Context(), couple, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// handleCloseMonth freezes the month. Closing an already closed month
// returns the original snapshot, so retries are safe.
func (s *Server) handleCloseMonth(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	balance, err := s.closures.CloseMonth(r.Context(), couple, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleMonthHistory(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	items, err := s.closures.History(r.Context(), couple)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Months []services.HistoryItem `json:"months"`
	}{Months: items})
}

// handleMonthDetail returns a month's expenses together with its
// balance, closed or open.
func (s *Server) handleMonthDetail(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	year, month, err := pathYearMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	balance, err := s.balance.CalculateBalance(r.Context(), couple, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	expenses, _, err := s.expenses.ListMonth(r.Context(), couple, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, toExpenseResponse(e))
	}

	writeJSON(w, http.StatusOK, struct {
		Balance  core.BalanceBreakdown `json:"balance"`
		Expenses []expenseResponse     `json:"expenses"`
	}{Balance: balance, Expenses: items})
}
