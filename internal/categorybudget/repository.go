package categorybudget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	ErrNotFound = errors.New("category budget not found")

	// ErrDuplicateAllocation is returned when the category is already
	// allocated in the budget.
	ErrDuplicateAllocation = errors.New("category already added to this budget")
)

// UpdateFields is a partial update; nil fields are left untouched.
type UpdateFields struct {
	Amount          *float64
	RemainingAmount *float64
	Description     *string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, budgetID, categoryID string, amount float64, description *string) (CategoryBudget, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return CategoryBudget{}, fmt.Errorf("generate category budget id: %w", err)
	}

	now := time.Now().UTC()
	cb := CategoryBudget{
		ID:              id.String(),
		BudgetID:        budgetID,
		CategoryID:      categoryID,
		Amount:          amount,
		RemainingAmount: amount,
		Description:     description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO category_budgets (id, budget_id, category_id, amount, remaining_amount, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $6)
	`, cb.ID, cb.BudgetID, cb.CategoryID, cb.Amount, description, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return CategoryBudget{}, ErrDuplicateAllocation
		}
		return CategoryBudget{}, fmt.Errorf("insert category budget: %w", err)
	}

	return cb, nil
}

// ByID loads an allocation, joining budgets to enforce ownership.
func (r *Repository) ByID(ctx context.Context, userID, id string) (CategoryBudget, error) {
	var cb CategoryBudget
	var description sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT cb.id, cb.budget_id, cb.category_id, cb.amount, cb.remaining_amount, cb.description, cb.created_at, cb.updated_at
		FROM category_budgets cb
		JOIN budgets b ON cb.budget_id = b.id
		WHERE cb.id = $1 AND b.user_id = $2
	`, id, userID).Scan(&cb.ID, &cb.BudgetID, &cb.CategoryID, &cb.Amount, &cb.RemainingAmount, &description, &cb.CreatedAt, &cb.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CategoryBudget{}, ErrNotFound
		}
		return CategoryBudget{}, fmt.Errorf("query category budget: %w", err)
	}
	if description.Valid {
		cb.Description = &description.String
	}

	return cb, nil
}

func (r *Repository) ListByBudget(ctx context.Context, userID, budgetID string) ([]CategoryBudgetWithDetails, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cb.id, cb.budget_id, cb.category_id, cb.amount, cb.remaining_amount, cb.description, cb.created_at, cb.updated_at, c.name
		FROM category_budgets cb
		JOIN budgets b ON cb.budget_id = b.id
		JOIN categories c ON cb.category_id = c.id
		WHERE cb.budget_id = $1 AND b.user_id = $2
		ORDER BY c.name ASC
	`, budgetID, userID)
	if err != nil {
		return nil, fmt.Errorf("query category budgets: %w", err)
	}
	defer rows.Close()

	results := make([]CategoryBudgetWithDetails, 0)
	for rows.Next() {
		var cb CategoryBudgetWithDetails
		var description sql.NullString
		if err := rows.Scan(&cb.ID, &cb.BudgetID, &cb.CategoryID, &cb.Amount, &cb.RemainingAmount, &description, &cb.CreatedAt, &cb.UpdatedAt, &cb.CategoryName); err != nil {
			return nil, fmt.Errorf("scan category budget: %w", err)
		}
		if description.Valid {
			cb.Description = &description.String
		}
		results = append(results, cb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category budgets: %w", err)
	}

	return results, nil
}

// Update applies the non-nil fields. With nothing to change it degenerates
// to a lookup.
func (r *Repository) Update(ctx context.Context, userID, id string, fields UpdateFields) (CategoryBudget, error) {
	sets := make([]string, 0, 3)
	args := []any{id, userID}

	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Amount != nil {
		appendSet("amount", *fields.Amount)
	}
	if fields.RemainingAmount != nil {
		appendSet("remaining_amount", *fields.RemainingAmount)
	}
	if fields.Description != nil {
		appendSet("description", *fields.Description)
	}

	if len(sets) == 0 {
		return r.ByID(ctx, userID, id)
	}

	appendSet("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`
		UPDATE category_budgets cb
		SET %s
		FROM budgets b
		WHERE cb.id = $1 AND cb.budget_id = b.id AND b.user_id = $2
		RETURNING cb.id, cb.budget_id, cb.category_id, cb.amount, cb.remaining_amount, cb.description, cb.created_at, cb.updated_at
	`, strings.Join(sets, ", "))

	var cb CategoryBudget
	var description sql.NullString
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&cb.ID, &cb.BudgetID, &cb.CategoryID, &cb.Amount, &cb.RemainingAmount, &description, &cb.CreatedAt, &cb.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CategoryBudget{}, ErrNotFound
		}
		return CategoryBudget{}, fmt.Errorf("update category budget: %w", err)
	}
	if description.Valid {
		cb.Description = &description.String
	}

	return cb, nil
}

func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM category_budgets cb
		USING budgets b
		WHERE cb.id = $1 AND cb.budget_id = b.id AND b.user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category budget: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
