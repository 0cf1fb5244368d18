package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"prorata/internal/core"
	"prorata/internal/services"
)

type expenseResponse struct {
	ID           int64  `json:"id"`
	PaidByUserID int64  `json:"paidByUserId"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
	SpentAt      string `json:"spentAt"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:           e.ID,
		PaidByUserID: e.PaidByUserID,
		Title:        e.Title,
		Category:     e.Category,
		AmountCents:  e.AmountCents,
		Currency:     e.Currency,
		SpentAt:      e.SpentAt.String(),
	}
}

// queryYearMonth reads year/month query parameters, defaulting to the
// current calendar month.
func queryYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	return year, month
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	year, month := queryYearMonth(r)

	expenses, closed, err := s.expenses.ListMonth(r.Context(), couple, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, toExpenseResponse(e))
	}

	writeJSON(w, http.StatusOK, struct {
		Year     int               `json:"year"`
		Month    int               `json:"month"`
		IsClosed bool              `json:"isClosed"`
		Expenses []expenseResponse `json:"expenses"`
	}{Year: year, Month: month, IsClosed: closed, Expenses: items})
}

type expensePayload struct {
	PaidByUserID *int64  `json:"paidByUserId"`
	Title        *string `json:"title"`
	Category     *string `json:"category"`
	AmountCents  *int64  `json:"amountCents"`
	Currency     *string `json:"currency"`
	SpentAt      *string `json:"spentAt"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	var req expensePayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	in := services.CreateExpenseInput{
		// Default payer is the caller
		PaidByUserID: user.ID,
		Currency:     "EUR",
	}
	if req.PaidByUserID != nil {
		in.PaidByUserID = *req.PaidByUserID
	}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Category != nil {
		in.Category = *req.Category
	}
	if req.AmountCents != nil {
		in.AmountCents = *req.AmountCents
	}
	if req.Currency != nil {
		in.Currency = *req.Currency
	}
	if req.SpentAt != nil {
		d, err := core.ParseDate(*req.SpentAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "spentAt must be YYYY-MM-DD")
			return
		}
		in.SpentAt = d
	}

	expense, err := s.expenses.Create(r.Context(), couple, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(*expense))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var req expensePayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	in := services.UpdateExpenseInput{
		PaidByUserID: req.PaidByUserID,
		Title:        req.Title,
		Category:     req.Category,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	}
	if req.SpentAt != nil {
		d, err := core.ParseDate(*req.SpentAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "spentAt must be YYYY-MM-DD")
			return
		}
		in.SpentAt = &d
	}

	expense, err := s.expenses.Update(r.Context(), couple, id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(*expense))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := s.expenses.Delete(r.Context(), couple, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
