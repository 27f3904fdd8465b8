package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	// ErrBudgetNotFound covers both missing rows and rows owned by another
	// user; callers cannot tell the two apart.
	ErrBudgetNotFound = errors.New("budget not found")

	// ErrDuplicatePeriod is returned when the user already has a budget for
	// the month/year pair.
	ErrDuplicatePeriod = errors.New("budget already exists for period")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, userID string, month, year int, totalBudget float64) (Budget, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Budget{}, fmt.Errorf("generate budget id: %w", err)
	}

	now := time.Now().UTC()
	b := Budget{
		ID:          id.String(),
		UserID:      userID,
		Month:       month,
		Year:        year,
		TotalBudget: totalBudget,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, month, year, total_budget, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, b.ID, b.UserID, b.Month, b.Year, b.TotalBudget, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Budget{}, ErrDuplicatePeriod
		}
		return Budget{}, fmt.Errorf("insert budget: %w", err)
	}

	return b, nil
}

func (r *Repository) ByID(ctx context.Context, userID, id string) (Budget, error) {
	return r.budgetBy(ctx, `id = $2`, userID, id)
}

func (r *Repository) ByPeriod(ctx context.Context, userID string, month, year int) (Budget, error) {
	return r.budgetBy(ctx, `month = $2 AND year = $3`, userID, month, year)
}

func (r *Repository) budgetBy(ctx context.Context, where string, userID string, args ...any) (Budget, error) {
	var b Budget
	query := `
		SELECT id, user_id, month, year, total_budget, created_at, updated_at
		FROM budgets
		WHERE user_id = $1 AND ` + where

	err := r.db.QueryRowContext(ctx, query, append([]any{userID}, args...)...).
		Scan(&b.ID, &b.UserID, &b.Month, &b.Year, &b.TotalBudget, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Budget{}, ErrBudgetNotFound
		}
		return Budget{}, fmt.Errorf("query budget: %w", err)
	}

	return b, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, month, year, total_budget, created_at, updated_at
		FROM budgets
		WHERE user_id = $1
		ORDER BY year DESC, month DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	budgets := make([]Budget, 0)
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.Month, &b.Year, &b.TotalBudget, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}

	return budgets, nil
}

// Allocations returns the category slices of a budget, name ascending.
func (r *Repository) Allocations(ctx context.Context, budgetID string) ([]Allocation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cb.id, cb.category_id, c.name, cb.amount, cb.remaining_amount, cb.description
		FROM category_budgets cb
		JOIN categories c ON cb.category_id = c.id
		WHERE cb.budget_id = $1
		ORDER BY c.name ASC
	`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	allocations := make([]Allocation, 0)
	for rows.Next() {
		var a Allocation
		var description sql.NullString
		if err := rows.Scan(&a.ID, &a.CategoryID, &a.CategoryName, &a.Amount, &a.RemainingAmount, &description); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		if description.Valid {
			a.Description = &description.String
		}
		allocations = append(allocations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}

	return allocations, nil
}

func (r *Repository) UpdateTotal(ctx context.Context, userID, id string, totalBudget float64) (Budget, error) {
	var b Budget

	err := r.db.QueryRowContext(ctx, `
		UPDATE budgets
		SET total_budget = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, month, year, total_budget, created_at, updated_at
	`, id, userID, totalBudget, time.Now().UTC()).
		Scan(&b.ID, &b.UserID, &b.Month, &b.Year, &b.TotalBudget, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Budget{}, ErrBudgetNotFound
		}
		return Budget{}, fmt.Errorf("update budget: %w", err)
	}

	return b, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrBudgetNotFound
	}

	return nil
}
