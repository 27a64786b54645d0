package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MealSlot struct {
	MealType       MealType         `json:"meal_type"`
	IsAvailable    bool             `json:"is_available"`
	Menu           string           `json:"menu"`
	Weight         *decimal.Decimal `json:"weight,omitempty"`
	CustomDeadline *time.Time       `json:"custom_deadline,omitempty"`
}

// EffectiveWeight is the slot weight, 1 when unset or not positive.
func (s MealSlot) EffectiveWeight() decimal.Decimal {
	if s.Weight == nil || !s.Weight.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return *s.Weight
}

type MealSchedule struct {
	ID             int                           `gorm:"primary_key" json:"id"`
	Date           time.Time                     `gorm:"type:date;not null;uniqueIndex" json:"date"`
	IsHoliday      bool                          `gorm:"not null;default:false" json:"is_holiday"`
	AvailableMeals datatypes.JSONSlice[MealSlot] `json:"available_meals"`
	CreatedBy      int                           `gorm:"index" json:"created_by"`
	CreatedAt      time.Time                     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                     `gorm:"autoUpdateTime" json:"updated_at"`
}

type UpdateMealSchedule struct {
	IsHoliday      *bool      `json:"is_holiday"`
	AvailableMeals []MealSlot `json:"available_meals"`
}

type BulkScheduleUpdate struct {
	Date           string     `json:"date" validate:"required"`
	IsHoliday      *bool      `json:"is_holiday"`
	AvailableMeals []MealSlot `json:"available_meals"`
}

// Slot finds the slot for mealType.
func (s *MealSchedule) Slot(mealType MealType) (MealSlot, bool) {
	for _, slot := range s.AvailableMeals {
		if slot.MealType == mealType {
			return slot, true
		}
	}
	return MealSlot{}, false
}

// WeightFor returns the weight of mealType on this date, 1 when the slot is absent.
func (s *MealSchedule) WeightFor(mealType MealType) decimal.Decimal {
	if slot, ok := s.Slot(mealType); ok {
		return slot.EffectiveWeight()
	}
	return decimal.NewFromInt(1)
}

func (s *MealSchedule) Normalize() {
	s.Date = DateOnly(s.Date)
	for i := range s.AvailableMeals {
		w := s.AvailableMeals[i].EffectiveWeight()
		s.AvailableMeals[i].Weight = &w
	}
}

func (s *MealSchedule) AfterFind(tx *gorm.DB) error {
	s.Normalize()
	return nil
}
