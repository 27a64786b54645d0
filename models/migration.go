package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Member{},
		&MealSchedule{}, &MealRegistration{},
		&Deposit{}, &Expense{},
		&MemberBalance{}, &MonthlyFinalization{},
	)
}
