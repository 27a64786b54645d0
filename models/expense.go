package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Date        time.Time       `gorm:"type:date;index;not null" json:"date"`
	Category    string          `gorm:"size:100;index;not null" json:"category"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description string          `gorm:"type:text" json:"description"`
	AddedBy     int             `json:"added_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExpense struct {
	Date        string          `json:"date" validate:"required"`
	Category    string          `json:"category" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type UpdateExpense struct {
	Date        *string          `json:"date"`
	Category    *string          `json:"category" validate:"omitempty,min=1,max=100"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
}

type ExpenseFilter struct {
	StartDate time.Time
	EndDate   time.Time
}
