package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"budget-api/internal/db"
)

// Integration tests run when TEST_DATABASE_URL is set; otherwise they skip
// so plain `go test ./...` stays fast.

func testRepository(t *testing.T) *Repository {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}

	database, err := sql.Open("pgx", dbURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.Ping(); err != nil {
		t.Fatalf("ping database: %v", err)
	}
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return NewRepository(database)
}

func createTestUser(ctx context.Context, t *testing.T, repo *Repository) User {
	t.Helper()

	email := fmt.Sprintf("it-%s@example.com", uuid.NewString())
	user, err := repo.CreateUser(ctx, "Integration", email, "not-a-real-hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = repo.db.ExecContext(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func TestRepositoryCreateUserDuplicateEmail(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	user := createTestUser(ctx, t, repo)

	if _, err := repo.CreateUser(ctx, "Other", user.Email, "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRepositoryRotateRefreshTokenIsConditional(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	user := createTestUser(ctx, t, repo)
	token := "rt-" + uuid.NewString()
	expiresAt := time.Now().UTC().Add(time.Hour)

	if err := repo.InsertRefreshToken(ctx, user.ID, token, expiresAt); err != nil {
		t.Fatalf("insert refresh token: %v", err)
	}

	rotated, err := repo.RotateRefreshToken(ctx, token, "rt-successor")
	if err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if !rotated {
		t.Fatal("first rotation must win")
	}

	// The row is now revoked, so a second rotation finds nothing to update.
	rotated, err = repo.RotateRefreshToken(ctx, token, "rt-other")
	if err != nil {
		t.Fatalf("second rotation: %v", err)
	}
	if rotated {
		t.Fatal("second rotation must lose")
	}

	row, err := repo.RefreshTokenByValue(ctx, token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !row.Revoked {
		t.Fatal("rotated token must be revoked")
	}
	if row.ReplacedByToken == nil || *row.ReplacedByToken != "rt-successor" {
		t.Fatalf("successor pointer must survive the losing attempt, got %v", row.ReplacedByToken)
	}
}

func TestRepositoryRevokeAllAndVersionBump(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	user := createTestUser(ctx, t, repo)
	expiresAt := time.Now().UTC().Add(time.Hour)

	tokens := []string{"rt-" + uuid.NewString(), "rt-" + uuid.NewString()}
	for _, token := range tokens {
		if err := repo.InsertRefreshToken(ctx, user.ID, token, expiresAt); err != nil {
			t.Fatalf("insert refresh token: %v", err)
		}
	}

	if err := repo.RevokeAllRefreshTokens(ctx, user.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	for _, token := range tokens {
		row, err := repo.RefreshTokenByValue(ctx, token)
		if err != nil {
			t.Fatalf("lookup %s: %v", token, err)
		}
		if !row.Revoked {
			t.Fatalf("token %s must be revoked", token)
		}
	}

	version, err := repo.IncrementTokenVersion(ctx, user.ID)
	if err != nil {
		t.Fatalf("increment version: %v", err)
	}
	if version != user.TokenVersion+1 {
		t.Fatalf("expected version %d, got %d", user.TokenVersion+1, version)
	}

	reloaded, err := repo.UserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.TokenVersion != version {
		t.Fatalf("stored version %d does not match returned %d", reloaded.TokenVersion, version)
	}
}

func TestRepositoryResetTokenLifecycle(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	user := createTestUser(ctx, t, repo)
	token := "reset-" + uuid.NewString()

	// Unknown email is a silent no-op.
	if err := repo.SetResetToken(ctx, "nobody@example.com", token, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("set reset token for unknown email: %v", err)
	}

	if err := repo.SetResetToken(ctx, user.Email, token, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("set reset token: %v", err)
	}

	found, err := repo.UserByResetToken(ctx, token)
	if err != nil {
		t.Fatalf("lookup by reset token: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, found.ID)
	}

	if err := repo.ConsumePasswordReset(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("consume reset: %v", err)
	}
	if _, err := repo.UserByResetToken(ctx, token); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("consumed token must not resolve, got %v", err)
	}

	// An expired token never resolves and the cleanup pass clears it.
	expired := "reset-" + uuid.NewString()
	if err := repo.SetResetToken(ctx, user.Email, expired, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("set expired token: %v", err)
	}
	if _, err := repo.UserByResetToken(ctx, expired); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expired token must not resolve, got %v", err)
	}
	if _, err := repo.ClearExpiredResetTokens(ctx); err != nil {
		t.Fatalf("clear expired reset tokens: %v", err)
	}
}
