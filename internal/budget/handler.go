package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"budget-api/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type createBudgetRequest struct {
	Month       int      `json:"month"`
	Year        int      `json:"year"`
	TotalBudget *float64 `json:"total_budget"`
}

type updateBudgetRequest struct {
	TotalBudget *float64 `json:"total_budget"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var body createBudgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if body.Month == 0 || body.Year == 0 || body.TotalBudget == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: month, year, total_budget")
		return
	}
	if body.Month < 1 || body.Month > 12 {
		writeError(w, http.StatusBadRequest, "Month must be between 1 and 12")
		return
	}
	if body.Year < 2000 {
		writeError(w, http.StatusBadRequest, "Year must be 2000 or later")
		return
	}
	if *body.TotalBudget < 0 {
		writeError(w, http.StatusBadRequest, "Total budget must be positive")
		return
	}

	b, err := h.repo.Create(r.Context(), identity.UserID, body.Month, body.Year, *body.TotalBudget)
	if err != nil {
		if errors.Is(err, ErrDuplicatePeriod) {
			writeError(w, http.StatusConflict, fmt.Sprintf("Budget already exists for %d/%d", body.Month, body.Year))
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Budget created successfully",
		"data":    b,
	})
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget ID")
		return
	}

	b, err := h.repo.ByID(r.Context(), identity.UserID, id)
	if err != nil {
		if errors.Is(err, ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	detail, err := h.withAllocations(r.Context(), b)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": detail})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	budgets, err := h.repo.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	details := make([]BudgetWithAllocations, 0, len(budgets))
	for _, b := range budgets {
		detail, err := h.withAllocations(r.Context(), b)
		if err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		details = append(details, detail)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": details})
}

func (h *Handler) GetByPeriod(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	year, errYear := strconv.Atoi(r.PathValue("year"))
	month, errMonth := strconv.Atoi(r.PathValue("month"))
	if errYear != nil || errMonth != nil {
		writeError(w, http.StatusBadRequest, "Invalid parameters")
		return
	}

	b, err := h.repo.ByPeriod(r.Context(), identity.UserID, month, year)
	if err != nil {
		if errors.Is(err, ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	detail, err := h.withAllocations(r.Context(), b)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": detail})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget ID")
		return
	}

	var body updateBudgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if body.TotalBudget == nil {
		writeError(w, http.StatusBadRequest, "Missing total_budget field")
		return
	}
	if *body.TotalBudget < 0 {
		writeError(w, http.StatusBadRequest, "Total budget must be positive")
		return
	}

	b, err := h.repo.UpdateTotal(r.Context(), identity.UserID, id, *body.TotalBudget)
	if err != nil {
		if errors.Is(err, ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Budget updated successfully",
		"data":    b,
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget ID")
		return
	}

	if err := h.repo.Delete(r.Context(), identity.UserID, id); err != nil {
		if errors.Is(err, ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Budget deleted successfully"})
}

func (h *Handler) withAllocations(ctx context.Context, b Budget) (BudgetWithAllocations, error) {
	allocations, err := h.repo.Allocations(ctx, b.ID)
	if err != nil {
		return BudgetWithAllocations{}, err
	}

	total := 0.0
	for _, a := range allocations {
		total += a.Amount
	}

	return BudgetWithAllocations{
		Budget:          b,
		CategoryBudgets: allocations,
		TotalAllocated:  total,
	}, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
