package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MemberFinalization is one member's settlement line inside a finalized month.
// BalanceBefore is the live balance read at finalization time; undo restores from it.
type MemberFinalization struct {
	MemberId        int             `json:"member_id"`
	MemberName      string          `json:"member_name"`
	TotalMeals      decimal.Decimal `json:"total_meals"`
	TotalDeposits   decimal.Decimal `json:"total_deposits"`
	MealCost        decimal.Decimal `json:"meal_cost"`
	MosqueFee       decimal.Decimal `json:"mosque_fee"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	Status          BalanceStatus   `json:"status"`
}

// MealRateScale is the number of decimal places a meal rate is kept at, in
// memory and in the meal_rate column.
const MealRateScale int32 = 16

type MonthlyFinalization struct {
	ID               int                                     `gorm:"primary_key" json:"id"`
	Month            string                                  `gorm:"size:7;not null;uniqueIndex" json:"month"`
	TotalMembers     int                                     `json:"total_members"`
	TotalMealsServed decimal.Decimal                         `gorm:"type:decimal(20,4)" json:"total_meals_served"`
	TotalDeposits    decimal.Decimal                         `gorm:"type:decimal(20,4)" json:"total_deposits"`
	TotalExpenses    decimal.Decimal                         `gorm:"type:decimal(20,4)" json:"total_expenses"`
	// MealRate keeps the full division scale so stored rate x meals reproduces each meal cost.
	MealRate         decimal.Decimal                         `gorm:"type:decimal(36,16)" json:"meal_rate"`
	ExpenseBreakdown datatypes.JSONSlice[CategoryTotal]      `json:"expense_breakdown"`
	MemberDetails    datatypes.JSONSlice[MemberFinalization] `json:"member_details"`
	FinalizedBy      int                                     `json:"finalized_by"`
	FinalizedAt      time.Time                               `json:"finalized_at"`
}

// Detail returns the settlement line of memberId, if the member was settled this month.
func (f *MonthlyFinalization) Detail(memberId int) (MemberFinalization, bool) {
	for _, d := range f.MemberDetails {
		if d.MemberId == memberId {
			return d, true
		}
	}
	return MemberFinalization{}, false
}

type FinalizeMonthInput struct {
	Month string `json:"month" validate:"required"`
}
