package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleManager   UserRole = "manager"
	UserRoleMember    UserRole = "member"
	UserRoleModerator UserRole = "moderator"
	UserRoleStaff     UserRole = "staff"
)

var AllUserRoles = []UserRole{UserRoleAdmin, UserRoleManager, UserRoleMember, UserRoleModerator, UserRoleStaff}

func (r UserRole) IsValid() bool {
	for _, v := range AllUserRoles {
		if r == v {
			return true
		}
	}
	return false
}

func UserRoleNames() string {
	names := make([]string, 0, len(AllUserRoles))
	for _, r := range AllUserRoles {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

type MealType string

const (
	MealTypeMorning MealType = "morning"
	MealTypeEvening MealType = "evening"
	MealTypeNight   MealType = "night"
)

var AllMealTypes = []MealType{MealTypeMorning, MealTypeEvening, MealTypeNight}

func (t MealType) IsValid() bool {
	switch t {
	case MealTypeMorning, MealTypeEvening, MealTypeNight:
		return true
	}
	return false
}

type BalanceStatus string

const (
	BalanceStatusDue     BalanceStatus = "due"
	BalanceStatusAdvance BalanceStatus = "advance"
	BalanceStatusPaid    BalanceStatus = "paid"
)

// BalanceStatusOf: negative balances are owed, positive ones are paid in advance.
func BalanceStatusOf(balance decimal.Decimal) BalanceStatus {
	switch balance.Sign() {
	case -1:
		return BalanceStatusDue
	case 1:
		return BalanceStatusAdvance
	default:
		return BalanceStatusPaid
	}
}
