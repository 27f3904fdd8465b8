package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"budget-api/internal/observability"
)

// testMux wires the auth routes the way the application bootstrap does.
func testMux(t *testing.T) *http.ServeMux {
	t.Helper()

	codec := testCodec(t)
	service := NewService(newFakeStore(), codec, observability.NewLogger("test"))
	handler := NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", handler.Register)
	mux.HandleFunc("POST /login", handler.Login)
	mux.HandleFunc("POST /refresh", handler.Refresh)
	mux.Handle("POST /logout", Middleware(codec, http.HandlerFunc(handler.Logout)))
	mux.Handle("POST /logout-all", Middleware(codec, http.HandlerFunc(handler.LogoutAll)))
	mux.Handle("GET /me", Middleware(codec, http.HandlerFunc(handler.Me)))
	mux.HandleFunc("POST /forgot-password", handler.ForgotPassword)
	mux.HandleFunc("POST /reset-password", handler.ResetPassword)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestRegisterLoginMeFlow(t *testing.T) {
	mux := testMux(t)

	rec, body := doJSON(t, mux, http.MethodPost, "/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %v", rec.Code, body)
	}
	if userID, _ := body["userId"].(string); userID == "" {
		t.Fatal("register response missing userId")
	}

	rec, body = doJSON(t, mux, http.MethodPost, "/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rec.Code)
	}

	rec, body = doJSON(t, mux, http.MethodPost, "/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %v", rec.Code, body)
	}
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("login response missing tokens: %v", body)
	}
	if body["role"] != RoleUser {
		t.Fatalf("expected role %q, got %v", RoleUser, body["role"])
	}

	rec, body = doJSON(t, mux, http.MethodGet, "/me", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %v", rec.Code, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["email"] != "ada@example.com" {
		t.Fatalf("unexpected profile: %v", body)
	}
}

func TestLoginRejectsBadInput(t *testing.T) {
	mux := testMux(t)

	rec, _ := doJSON(t, mux, http.MethodPost, "/login", "", map[string]string{"email": "a@b.c"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/login", "", map[string]string{
		"email": "nobody@example.com", "password": "whatever1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", rec.Code)
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	mux := testMux(t)

	doJSON(t, mux, http.MethodPost, "/register", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})
	_, login := doJSON(t, mux, http.MethodPost, "/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})
	refresh, _ := login["refreshToken"].(string)

	rec, _ := doJSON(t, mux, http.MethodPost, "/refresh", "", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing token: expected 400, got %d", rec.Code)
	}

	rec, body := doJSON(t, mux, http.MethodPost, "/refresh", "", map[string]string{"refreshToken": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %v", rec.Code, body)
	}
	rotated, _ := body["refreshToken"].(string)
	if rotated == "" || rotated == refresh {
		t.Fatalf("expected a new refresh token, got %v", body)
	}

	// The consumed token is dead.
	rec, _ = doJSON(t, mux, http.MethodPost, "/refresh", "", map[string]string{"refreshToken": refresh})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("replay: expected 403, got %d", rec.Code)
	}
}

func TestLogoutAllEndpoint(t *testing.T) {
	mux := testMux(t)

	doJSON(t, mux, http.MethodPost, "/register", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})
	_, login := doJSON(t, mux, http.MethodPost, "/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})
	access, _ := login["accessToken"].(string)
	refresh, _ := login["refreshToken"].(string)

	rec, _ := doJSON(t, mux, http.MethodPost, "/logout-all", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all: expected 200, got %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/refresh", "", map[string]string{"refreshToken": refresh})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("refresh after logout-all: expected 403, got %d", rec.Code)
	}
}

func TestForgotPasswordNeverLeaksExistence(t *testing.T) {
	mux := testMux(t)

	doJSON(t, mux, http.MethodPost, "/register", "", map[string]string{
		"email": "ada@example.com", "password": "secret123",
	})

	rec1, body1 := doJSON(t, mux, http.MethodPost, "/forgot-password", "", map[string]string{"email": "ada@example.com"})
	rec2, body2 := doJSON(t, mux, http.MethodPost, "/forgot-password", "", map[string]string{"email": "nobody@example.com"})

	if rec1.Code != http.StatusOK || rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d and %d", rec1.Code, rec2.Code)
	}
	if body1["message"] != body2["message"] {
		t.Fatalf("responses must be indistinguishable: %v vs %v", body1, body2)
	}
	for _, body := range []map[string]any{body1, body2} {
		if _, leaked := body["resetToken"]; leaked {
			t.Fatal("reset token must never appear in the response")
		}
	}
}

func TestRejectsUnknownJSONFields(t *testing.T) {
	mux := testMux(t)

	rec, _ := doJSON(t, mux, http.MethodPost, "/login", "", map[string]string{
		"email": "a@b.c", "password": "x", "admin": "true",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
}
