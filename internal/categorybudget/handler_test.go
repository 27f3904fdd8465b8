package categorybudget

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budget-api/internal/auth"
	"budget-api/internal/budget"
	"budget-api/internal/category"
)

// The repositories are never reached: only validation rejections are
// exercised.
func testGuardedMux(t *testing.T) (*http.ServeMux, string) {
	t.Helper()

	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		ResetSecret:   "reset-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		ResetTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	access, _, err := codec.IssuePair("user-1", 0)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	handler := NewHandler(NewRepository(nil), budget.NewRepository(nil), category.NewRepository(nil))
	mux := http.NewServeMux()
	mux.Handle("POST /api/category-budgets", auth.Middleware(codec, http.HandlerFunc(handler.Create)))
	mux.Handle("GET /api/category-budgets/budget/{budgetId}", auth.Middleware(codec, http.HandlerFunc(handler.ListByBudget)))
	mux.Handle("PUT /api/category-budgets/{id}", auth.Middleware(codec, http.HandlerFunc(handler.Update)))
	mux.Handle("DELETE /api/category-budgets/{id}", auth.Middleware(codec, http.HandlerFunc(handler.Delete)))
	return mux, access
}

func TestCreateAllocationValidation(t *testing.T) {
	mux, token := testGuardedMux(t)

	validBudget := "0190a8a0-0000-7000-8000-000000000001"
	validCategory := "0190a8a0-0000-7000-8000-000000000002"

	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"missing fields", `{"amount": 50}`, "Missing required fields: budget_id, category_id, amount"},
		{"bad budget id", `{"budget_id": "nope", "category_id": "` + validCategory + `", "amount": 50}`, "Invalid budget ID"},
		{"bad category id", `{"budget_id": "` + validBudget + `", "category_id": "nope", "amount": 50}`, "Invalid category ID"},
		{"negative amount", `{"budget_id": "` + validBudget + `", "category_id": "` + validCategory + `", "amount": -1}`, "Amount must not be negative"},
		{"malformed json", `{`, "Invalid JSON body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/category-budgets", strings.NewReader(tc.body))
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if body["message"] != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, body["message"])
			}
		})
	}
}

func TestUpdateAllocationValidation(t *testing.T) {
	mux, token := testGuardedMux(t)

	id := "0190a8a0-0000-7000-8000-000000000003"

	cases := []struct {
		name string
		path string
		body string
	}{
		{"bad id", "/api/category-budgets/nope", `{"amount": 50}`},
		{"negative amount", "/api/category-budgets/" + id, `{"amount": -1}`},
		{"negative remaining", "/api/category-budgets/" + id, `{"remaining_amount": -1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAllocationEndpointsRejectMalformedIDs(t *testing.T) {
	mux, token := testGuardedMux(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/category-budgets/budget/not-a-uuid"},
		{http.MethodDelete, "/api/category-budgets/not-a-uuid"},
	}

	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}
