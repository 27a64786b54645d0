package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Deposit struct {
	ID          int             `gorm:"primary_key" json:"id"`
	MemberId    int             `gorm:"index;not null" json:"member_id"`
	Month       string          `gorm:"size:7;index;not null" json:"month"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	DepositDate time.Time       `gorm:"not null" json:"deposit_date"`
	Notes       string          `gorm:"type:text" json:"notes"`
	AddedBy     int             `json:"added_by"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDeposit struct {
	MemberId    int             `json:"member_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Month       string          `json:"month" validate:"required"`
	DepositDate *time.Time      `json:"deposit_date"`
	Notes       string          `json:"notes"`
}

// UpdateDeposit carries optional changes; nil fields keep the stored value.
type UpdateDeposit struct {
	Amount      *decimal.Decimal `json:"amount"`
	Month       *string          `json:"month"`
	DepositDate *time.Time       `json:"deposit_date"`
	Notes       *string          `json:"notes"`
}

type DepositFilter struct {
	Month    string
	MemberId int
}
