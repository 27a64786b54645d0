package models

import (
	"time"

	"gorm.io/gorm"
)

type MealRegistration struct {
	ID            int       `gorm:"primary_key" json:"id"`
	MemberId      int       `gorm:"not null;uniqueIndex:idx_registration_member_date_type" json:"member_id"`
	Date          time.Time `gorm:"type:date;not null;index;uniqueIndex:idx_registration_member_date_type" json:"date"`
	MealType      MealType  `gorm:"type:enum('morning','evening','night');not null;uniqueIndex:idx_registration_member_date_type" json:"meal_type"`
	NumberOfMeals int       `gorm:"not null;default:1" json:"number_of_meals"`
	RegisteredAt  time.Time `gorm:"autoCreateTime" json:"registered_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMealRegistration struct {
	MemberId      int      `json:"member_id"`
	Date          string   `json:"date" validate:"required"`
	MealType      MealType `json:"meal_type" validate:"required"`
	NumberOfMeals int      `json:"number_of_meals" validate:"omitempty,min=1,max=10"`
}

type UpdateMealRegistration struct {
	NumberOfMeals int `json:"number_of_meals" validate:"required,min=1,max=10"`
}

type RegistrationFilter struct {
	MemberId  int
	StartDate time.Time
	EndDate   time.Time
}

func (r *MealRegistration) Normalize() {
	r.Date = DateOnly(r.Date)
	if r.NumberOfMeals <= 0 {
		r.NumberOfMeals = 1
	}
}

func (r *MealRegistration) AfterFind(tx *gorm.DB) error {
	r.Normalize()
	return nil
}
