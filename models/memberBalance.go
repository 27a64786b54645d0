package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MemberBalance is the running balance of one member. Deposits raise it and
// each finalized month lowers it by the member's meal cost and mosque fee.
type MemberBalance struct {
	ID          int             `gorm:"primary_key" json:"id"`
	MemberId    int             `gorm:"not null;uniqueIndex" json:"member_id"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	LastUpdated time.Time       `json:"last_updated"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type BalanceView struct {
	MemberId    int             `json:"member_id"`
	MemberName  string          `json:"member_name"`
	Balance     decimal.Decimal `json:"balance"`
	Status      BalanceStatus   `json:"status"`
	LastUpdated *time.Time      `json:"last_updated"`
}
