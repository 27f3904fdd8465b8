package categorybudget

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"budget-api/internal/auth"
	"budget-api/internal/budget"
	"budget-api/internal/category"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo       *Repository
	budgets    *budget.Repository
	categories *category.Repository
}

func NewHandler(repo *Repository, budgets *budget.Repository, categories *category.Repository) *Handler {
	return &Handler{repo: repo, budgets: budgets, categories: categories}
}

type createCategoryBudgetRequest struct {
	BudgetID    string   `json:"budget_id"`
	CategoryID  string   `json:"category_id"`
	Amount      *float64 `json:"amount"`
	Description *string  `json:"description"`
}

type updateCategoryBudgetRequest struct {
	Amount          *float64 `json:"amount"`
	RemainingAmount *float64 `json:"remaining_amount"`
	Description     *string  `json:"description"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var body createCategoryBudgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if body.BudgetID == "" || body.CategoryID == "" || body.Amount == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: budget_id, category_id, amount")
		return
	}
	if _, err := uuid.Parse(body.BudgetID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget ID")
		return
	}
	if _, err := uuid.Parse(body.CategoryID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category ID")
		return
	}
	if *body.Amount < 0 {
		writeError(w, http.StatusBadRequest, "Amount must not be negative")
		return
	}

	// Both parents must exist and belong to the caller before the row is
	// created, so a foreign budget never gains allocations.
	if _, err := h.budgets.ByID(r.Context(), identity.UserID, body.BudgetID); err != nil {
		if errors.Is(err, budget.ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if _, err := h.categories.ByID(r.Context(), identity.UserID, body.CategoryID); err != nil {
		if errors.Is(err, category.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	cb, err := h.repo.Create(r.Context(), body.BudgetID, body.CategoryID, *body.Amount, body.Description)
	if err != nil {
		if errors.Is(err, ErrDuplicateAllocation) {
			writeError(w, http.StatusConflict, "Category is already added to this budget")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Category budget created successfully",
		"data":    cb,
	})
}

func (h *Handler) ListByBudget(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	budgetID := r.PathValue("budgetId")
	if _, err := uuid.Parse(budgetID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid budget ID")
		return
	}

	if _, err := h.budgets.ByID(r.Context(), identity.UserID, budgetID); err != nil {
		if errors.Is(err, budget.ErrBudgetNotFound) {
			writeError(w, http.StatusNotFound, "Budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	allocations, err := h.repo.ListByBudget(r.Context(), identity.UserID, budgetID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": allocations})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category budget ID")
		return
	}

	var body updateCategoryBudgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if body.Amount != nil && *body.Amount < 0 {
		writeError(w, http.StatusBadRequest, "Amount must not be negative")
		return
	}
	if body.RemainingAmount != nil && *body.RemainingAmount < 0 {
		writeError(w, http.StatusBadRequest, "Remaining amount must not be negative")
		return
	}

	cb, err := h.repo.Update(r.Context(), identity.UserID, id, UpdateFields{
		Amount:          body.Amount,
		RemainingAmount: body.RemainingAmount,
		Description:     body.Description,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Category budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Category budget updated successfully",
		"data":    cb,
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
		writeError(w, http.StatusBadRequest, "Invalid category budget ID")
		return
	}

	if err := h.repo.Delete(r.Context(), identity.UserID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Category budget not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Category budget deleted successfully"})
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
