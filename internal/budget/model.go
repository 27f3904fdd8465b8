package budget

import "time"

type Budget struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	TotalBudget float64   `json:"total_budget"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Allocation is one category's slice of a budget, joined with the category
// name for display.
type Allocation struct {
	ID              string  `json:"id"`
	CategoryID      string  `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	Amount          float64 `json:"amount"`
	RemainingAmount float64 `json:"remaining_amount"`
	Description     *string `json:"description"`
}

// BudgetWithAllocations is the read shape for budget detail and listing.
type BudgetWithAllocations struct {
	Budget
	CategoryBudgets []Allocation `json:"category_budgets"`
	TotalAllocated  float64      `json:"total_allocated"`
}
