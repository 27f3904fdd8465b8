package category

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	ErrCategoryNotFound = errors.New("category not found")

	// ErrDuplicateName is returned when the user already has a category with
	// that name.
	ErrDuplicateName = errors.New("category already exists")

	// ErrCategoryInUse is returned when deletion is blocked by a budget
	// allocation still referencing the category.
	ErrCategoryInUse = errors.New("category is in use")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, userID, name string) (Category, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Category{}, fmt.Errorf("generate category id: %w", err)
	}

	c := Category{
		ID:        id.String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.UserID, c.Name, c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Category{}, ErrDuplicateName
		}
		return Category{}, fmt.Errorf("insert category: %w", err)
	}

	return c, nil
}

func (r *Repository) ByID(ctx context.Context, userID, id string) (Category, error) {
	var c Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at
		FROM categories
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, fmt.Errorf("query category: %w", err)
	}

	return c, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Category, error) {
	return r.list(ctx, `
		SELECT id, user_id, name, created_at
		FROM categories
		WHERE user_id = $1
		ORDER BY name ASC
	`, userID)
}

// SearchByName does prefix matching for autocomplete, capped at 10 rows.
func (r *Repository) SearchByName(ctx context.Context, userID, term string) ([]Category, error) {
	return r.list(ctx, `
		SELECT id, user_id, name, created_at
		FROM categories
		WHERE user_id = $1 AND name LIKE $2
		ORDER BY name ASC
		LIMIT 10
	`, userID, term+"%")
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrCategoryInUse
		}
		return fmt.Errorf("delete category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCategoryNotFound
	}

	return nil
}
