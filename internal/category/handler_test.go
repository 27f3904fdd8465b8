package category

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budget-api/internal/auth"
)

// The repository is never reached: only validation rejections are exercised.
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

	handler := NewHandler(NewRepository(nil))
	mux := http.NewServeMux()
	mux.Handle("POST /api/categories", auth.Middleware(codec, http.HandlerFunc(handler.Create)))
	mux.Handle("GET /api/categories/search", auth.Middleware(codec, http.HandlerFunc(handler.Search)))
	mux.Handle("DELETE /api/categories/{id}", auth.Middleware(codec, http.HandlerFunc(handler.Delete)))
	return mux, access
}

func TestCreateCategoryRequiresName(t *testing.T) {
	mux, token := testGuardedMux(t)

	for _, body := range []string{`{}`, `{"name": ""}`, `{"name": "   "}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
		var decoded map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if decoded["message"] != "Missing required field: name" {
			t.Fatalf("unexpected message: %v", decoded["message"])
		}
	}
}

func TestSearchRequiresTerm(t *testing.T) {
	mux, token := testGuardedMux(t)

	req := httptest.NewRequest(http.MethodGet, "/api/categories/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteCategoryRejectsMalformedID(t *testing.T) {
	mux, token := testGuardedMux(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/categories/not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
