package categorybudget

import "time"

// CategoryBudget is one category's allocation inside a monthly budget.
// RemainingAmount starts equal to Amount and is drawn down by spending.
type CategoryBudget struct {
	ID              string    `json:"id"`
	BudgetID        string    `json:"budget_id"`
	CategoryID      string    `json:"category_id"`
	Amount          float64   `json:"amount"`
	RemainingAmount float64   `json:"remaining_amount"`
	Description     *string   `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CategoryBudgetWithDetails struct {
	CategoryBudget
	CategoryName string `json:"category_name"`
}
