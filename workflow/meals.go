package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxScheduleRangeDays = 366

type deadlineRule struct {
	dayOffset int
	hour      int
}

// Registration closes at these local times unless a slot sets its own deadline.
var mealDeadlines = map[models.MealType]deadlineRule{
	models.MealTypeMorning: {dayOffset: -1, hour: 22},
	models.MealTypeEvening: {dayOffset: 0, hour: 10},
	models.MealTypeNight:   {dayOffset: 0, hour: 15},
}

type MealWorkflow struct {
	store  store.Store
	logger *logrus.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewMealWorkflow(st store.Store, logger *logrus.Logger, loc *time.Location, now func() time.Time) *MealWorkflow {
	if logger == nil {
		logger = logrus.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &MealWorkflow{store: st, logger: logger, loc: loc, now: now}
}

// DeadlineFor returns the registration deadline of mealType on date.
func DeadlineFor(date time.Time, mealType models.MealType, custom *time.Time, loc *time.Location) time.Time {
	if custom != nil && !custom.IsZero() {
		return custom.UTC()
	}
	rule, ok := mealDeadlines[mealType]
	if !ok {
		rule = mealDeadlines[models.MealTypeNight]
	}
	y, m, d := date.Date()
	return time.Date(y, m, d+rule.dayOffset, rule.hour, 0, 0, 0, loc).UTC()
}

// DefaultSlots: Friday, Saturday and holidays serve all meals, other days only night.
func DefaultSlots(date time.Time, isHoliday bool) []models.MealSlot {
	weekend := date.Weekday() == time.Friday || date.Weekday() == time.Saturday
	allDay := weekend || isHoliday
	return []models.MealSlot{
		{MealType: models.MealTypeMorning, IsAvailable: allDay},
		{MealType: models.MealTypeEvening, IsAvailable: allDay},
		{MealType: models.MealTypeNight, IsAvailable: true},
	}
}

type caller struct {
	id   int
	role models.UserRole
}

func (c caller) isAdmin() bool {
	return c.role == models.UserRoleAdmin
}

func callerFrom(ctx context.Context) (caller, error) {
	id, ok := utils.GetUserIdFromContext(ctx)
	if !ok || id <= 0 {
		return caller{}, utils.Forbidden("no member in request")
	}
	role, _ := utils.GetRoleFromContext(ctx)
	return caller{id: id, role: models.UserRole(role)}, nil
}

func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := models.ParseDate(startDate)
	if err != nil {
		return time.Time{}, time.Time{}, utils.Validation("startDate: %s", err.Error())
	}
	end, err := models.ParseDate(endDate)
	if err != nil {
		return time.Time{}, time.Time{}, utils.Validation("endDate: %s", err.Error())
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, utils.Validation("startDate must be before endDate")
	}
	return start, end, nil
}

// resolveRange accepts either a month or a start/end pair.
func resolveRange(month, startDate, endDate string) (time.Time, time.Time, error) {
	if month != "" {
		start, end, err := models.MonthRange(month)
		if err != nil {
			return time.Time{}, time.Time{}, utils.Validation("%s", err.Error())
		}
		return start, end, nil
	}
	if startDate == "" || endDate == "" {
		return time.Time{}, time.Time{}, utils.Validation("either month or both startDate and endDate are required")
	}
	return parseRange(startDate, endDate)
}

func validateSlots(slots []models.MealSlot) error {
	seen := map[models.MealType]bool{}
	for _, s := range slots {
		if !s.MealType.IsValid() {
			return utils.Validation("meal_type must be morning, evening, or night")
		}
		if seen[s.MealType] {
			return utils.Validation("meal_type %s listed twice", s.MealType)
		}
		seen[s.MealType] = true
	}
	return nil
}

// GenerateSchedules creates default schedules for every date in range that has none.
func (w *MealWorkflow) GenerateSchedules(ctx context.Context, startDate, endDate string) (int, error) {
	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return 0, err
	}
	if end.Sub(start) > maxScheduleRangeDays*24*time.Hour {
		return 0, utils.Validation("date range must not exceed %d days", maxScheduleRangeDays)
	}
	existing, err := w.store.ListSchedules(ctx, start, end)
	if err != nil {
		return 0, err
	}
	taken := make(map[time.Time]bool, len(existing))
	for _, sc := range existing {
		taken[models.DateOnly(sc.Date)] = true
	}

	createdBy, _ := utils.GetUserIdFromContext(ctx)
	var schedules []*models.MealSchedule
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if taken[d] {
			continue
		}
		schedules = append(schedules, &models.MealSchedule{
			Date:           d,
			AvailableMeals: DefaultSlots(d, false),
			CreatedBy:      createdBy,
		})
	}
	if err := w.store.CreateSchedules(ctx, schedules); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return 0, utils.Conflict("schedules were created concurrently for this range; retry")
		}
		config.LogError(w.logger, "meals.go", "GenerateSchedules", "creating schedules", map[string]string{"start": startDate, "end": endDate}, err)
		return 0, err
	}
	return len(schedules), nil
}

func (w *MealWorkflow) ListSchedules(ctx context.Context, month, startDate, endDate string) ([]*models.MealSchedule, error) {
	start, end, err := resolveRange(month, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return w.store.ListSchedules(ctx, start, end)
}

func applyScheduleChanges(sc *models.MealSchedule, isHoliday *bool, slots []models.MealSlot) error {
	if slots != nil {
		if err := validateSlots(slots); err != nil {
			return err
		}
		sc.AvailableMeals = slots
	}
	if isHoliday != nil {
		sc.IsHoliday = *isHoliday
	}
	return nil
}

func (w *MealWorkflow) UpdateSchedule(ctx context.Context, id int, input models.UpdateMealSchedule) (*models.MealSchedule, error) {
	sc, err := w.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, notFound(err, "meal schedule")
	}
	if err := applyScheduleChanges(sc, input.IsHoliday, input.AvailableMeals); err != nil {
		return nil, err
	}
	if err := w.store.UpdateSchedule(ctx, sc); err != nil {
		config.LogError(w.logger, "meals.go", "UpdateSchedule", "saving schedule", id, err)
		return nil, notFound(err, "meal schedule")
	}
	return sc, nil
}

type BulkUpdateResult struct {
	Updated      int      `json:"updated"`
	MissingDates []string `json:"missing_dates"`
}

// BulkUpdateSchedules applies each update to the schedule of its date. Dates
// without a schedule are reported, not created.
func (w *MealWorkflow) BulkUpdateSchedules(ctx context.Context, updates []models.BulkScheduleUpdate) (*BulkUpdateResult, error) {
	if len(updates) == 0 {
		return nil, utils.Validation("updates must not be empty")
	}
	dates := make([]time.Time, len(updates))
	for i, u := range updates {
		date, err := models.ParseDate(u.Date)
		if err != nil {
			return nil, utils.Validation("updates[%d].date: %s", i, err.Error())
		}
		if u.AvailableMeals != nil {
			if err := validateSlots(u.AvailableMeals); err != nil {
				return nil, err
			}
		}
		dates[i] = date
	}

	result := &BulkUpdateResult{MissingDates: []string{}}
	for i, u := range updates {
		sc, err := w.store.GetScheduleByDate(ctx, dates[i])
		if errors.Is(err, store.ErrNotFound) {
			result.MissingDates = append(result.MissingDates, dates[i].Format(models.DateLayout))
			continue
		} else if err != nil {
			return nil, err
		}
		if err := applyScheduleChanges(sc, u.IsHoliday, u.AvailableMeals); err != nil {
			return nil, err
		}
		if err := w.store.UpdateSchedule(ctx, sc); err != nil {
			config.LogError(w.logger, "meals.go", "BulkUpdateSchedules", "saving schedule", u, err)
			return nil, err
		}
		result.Updated++
	}
	return result, nil
}

type AvailableMeal struct {
	MealType       models.MealType `json:"meal_type"`
	IsAvailable    bool            `json:"is_available"`
	Menu           string          `json:"menu"`
	Weight         decimal.Decimal `json:"weight"`
	Deadline       time.Time       `json:"deadline"`
	CanRegister    bool            `json:"can_register"`
	IsRegistered   bool            `json:"is_registered"`
	RegistrationId *int            `json:"registration_id"`
	NumberOfMeals  *int            `json:"number_of_meals"`
}

type AvailableDay struct {
	Date      time.Time       `json:"date"`
	IsHoliday bool            `json:"is_holiday"`
	Meals     []AvailableMeal `json:"meals"`
}

type slotKey struct {
	date     time.Time
	mealType models.MealType
}

// AvailableMeals lists the caller's view of every scheduled slot in range.
func (w *MealWorkflow) AvailableMeals(ctx context.Context, month, startDate, endDate string) ([]AvailableDay, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	start, end, err := resolveRange(month, startDate, endDate)
	if err != nil {
		return nil, err
	}
	schedules, err := w.store.ListSchedules(ctx, start, end)
	if err != nil {
		return nil, err
	}
	regs, err := w.store.ListRegistrations(ctx, models.RegistrationFilter{MemberId: c.id, StartDate: start, EndDate: end})
	if err != nil {
		return nil, err
	}
	byKey := make(map[slotKey]*models.MealRegistration, len(regs))
	for _, r := range regs {
		byKey[slotKey{models.DateOnly(r.Date), r.MealType}] = r
	}

	now := w.now()
	days := make([]AvailableDay, 0, len(schedules))
	for _, sc := range schedules {
		day := AvailableDay{Date: sc.Date, IsHoliday: sc.IsHoliday}
		for _, slot := range sc.AvailableMeals {
			deadline := DeadlineFor(sc.Date, slot.MealType, slot.CustomDeadline, w.loc)
			meal := AvailableMeal{
				MealType:    slot.MealType,
				IsAvailable: slot.IsAvailable,
				Menu:        slot.Menu,
				Weight:      slot.EffectiveWeight(),
				Deadline:    deadline,
			}
			if reg, ok := byKey[slotKey{models.DateOnly(sc.Date), slot.MealType}]; ok {
				id, n := reg.ID, reg.NumberOfMeals
				meal.IsRegistered = true
				meal.RegistrationId = &id
				meal.NumberOfMeals = &n
			}
			meal.CanRegister = slot.IsAvailable && !now.After(deadline) && !meal.IsRegistered
			day.Meals = append(day.Meals, meal)
		}
		days = append(days, day)
	}
	return days, nil
}

// openSlot checks the slot exists, is available and, when asked, that its deadline has not passed.
func (w *MealWorkflow) openSlot(ctx context.Context, date time.Time, mealType models.MealType, enforceDeadline bool, closedMsg string) error {
	sc, err := w.store.GetScheduleByDate(ctx, date)
	if err != nil {
		return notFound(err, "meal schedule for this date")
	}
	slot, ok := sc.Slot(mealType)
	if !ok || !slot.IsAvailable {
		return utils.Validation("this meal is not available on this date")
	}
	if enforceDeadline && w.now().After(DeadlineFor(sc.Date, mealType, slot.CustomDeadline, w.loc)) {
		return utils.Validation("%s", closedMsg)
	}
	return nil
}

// RegisterMeal books a slot for the caller, or for another member when the caller is an admin.
// Admins registering on behalf of someone else are not bound by the deadline.
func (w *MealWorkflow) RegisterMeal(ctx context.Context, input models.NewMealRegistration) (*models.MealRegistration, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.MealType.IsValid() {
		return nil, utils.Validation("meal_type must be morning, evening, or night")
	}
	date, err := models.ParseDate(input.Date)
	if err != nil {
		return nil, utils.Validation("%s", err.Error())
	}

	memberId := c.id
	onBehalf := input.MemberId != 0 && input.MemberId != c.id
	if onBehalf {
		if !c.isAdmin() {
			return nil, utils.Forbidden("not authorized to register for others")
		}
		memberId = input.MemberId
		if _, err := w.store.GetMember(ctx, memberId); err != nil {
			return nil, notFound(err, "member")
		}
	}

	if err := w.openSlot(ctx, date, input.MealType, !onBehalf, "registration deadline has passed for this meal"); err != nil {
		return nil, err
	}

	reg := &models.MealRegistration{
		MemberId:      memberId,
		Date:          date,
		MealType:      input.MealType,
		NumberOfMeals: input.NumberOfMeals,
	}
	if err := w.store.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, utils.Conflict("already registered for this meal")
		}
		config.LogError(w.logger, "meals.go", "RegisterMeal", "creating registration", input, err)
		return nil, err
	}
	return reg, nil
}

func (w *MealWorkflow) UpdateRegistration(ctx context.Context, id int, input models.UpdateMealRegistration) (*models.MealRegistration, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	reg, err := w.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, notFound(err, "registration")
	}
	if !c.isAdmin() {
		if reg.MemberId != c.id {
			return nil, utils.Forbidden("you can only update your own registration")
		}
		if err := w.openSlot(ctx, reg.Date, reg.MealType, true, "deadline has passed; changes are no longer allowed"); err != nil {
			return nil, err
		}
	}
	reg.NumberOfMeals = input.NumberOfMeals
	if err := w.store.UpdateRegistration(ctx, reg); err != nil {
		config.LogError(w.logger, "meals.go", "UpdateRegistration", "saving registration", id, err)
		return nil, notFound(err, "registration")
	}
	return reg, nil
}

func (w *MealWorkflow) CancelRegistration(ctx context.Context, id int) error {
	c, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	reg, err := w.store.GetRegistration(ctx, id)
	if err != nil {
		return notFound(err, "registration")
	}
	if !c.isAdmin() {
		if reg.MemberId != c.id {
			return utils.Forbidden("you can only cancel your own registration")
		}
		sc, err := w.store.GetScheduleByDate(ctx, reg.Date)
		if err != nil {
			return notFound(err, "meal schedule for this date")
		}
		slot, _ := sc.Slot(reg.MealType)
		if w.now().After(DeadlineFor(sc.Date, reg.MealType, slot.CustomDeadline, w.loc)) {
			return utils.Validation("cancellation deadline has passed for this meal")
		}
	}
	if err := w.store.DeleteRegistration(ctx, id); err != nil {
		config.LogError(w.logger, "meals.go", "CancelRegistration", "deleting registration", id, err)
		return notFound(err, "registration")
	}
	return nil
}

// MyRegistrations lists the caller's registrations, optionally within a date range.
func (w *MealWorkflow) MyRegistrations(ctx context.Context, startDate, endDate string) ([]*models.MealRegistration, error) {
	c, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	filter := models.RegistrationFilter{MemberId: c.id}
	if startDate != "" && endDate != "" {
		filter.StartDate, filter.EndDate, err = parseRange(startDate, endDate)
		if err != nil {
			return nil, err
		}
	}
	return w.store.ListRegistrations(ctx, filter)
}

type MemberMealTotal struct {
	MemberId          int                                 `json:"member_id"`
	MemberName        string                              `json:"member_name"`
	Email             string                              `json:"email"`
	Month             string                              `json:"month"`
	TotalMeals        decimal.Decimal                     `json:"total_meals"`
	RegistrationCount int                                 `json:"registration_count"`
	Breakdown         map[models.MealType]decimal.Decimal `json:"breakdown"`
}

// TotalMeals sums the weighted meals of a member for month, the current month when empty.
// Weights follow the finalization rules so the figure matches what will be billed.
func (w *MealWorkflow) TotalMeals(ctx context.Context, email, month string) (*MemberMealTotal, error) {
	if month == "" {
		month = models.MonthOf(w.now().In(w.loc))
	}
	start, end, err := models.MonthRange(month)
	if err != nil {
		return nil, utils.Validation("%s", err.Error())
	}
	member, err := w.store.GetMemberByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, notFound(err, "member")
	}
	regs, err := w.store.ListRegistrations(ctx, models.RegistrationFilter{MemberId: member.ID, StartDate: start, EndDate: end})
	if err != nil {
		return nil, err
	}
	schedules, err := w.store.ListSchedules(ctx, start, end)
	if err != nil {
		return nil, err
	}
	summary := ComputeConsumption(w.logger, []*models.Member{member}, schedules, regs, nil)

	byDate := make(map[time.Time]*models.MealSchedule, len(schedules))
	for _, sc := range schedules {
		byDate[models.DateOnly(sc.Date)] = sc
	}
	breakdown := map[models.MealType]decimal.Decimal{}
	for _, t := range models.AllMealTypes {
		breakdown[t] = decimal.Zero
	}
	for _, r := range regs {
		sc, ok := byDate[models.DateOnly(r.Date)]
		if !ok {
			continue
		}
		breakdown[r.MealType] = breakdown[r.MealType].Add(sc.WeightFor(r.MealType).Mul(decimal.NewFromInt(int64(r.NumberOfMeals))))
	}
	return &MemberMealTotal{
		MemberId:          member.ID,
		MemberName:        member.Name,
		Email:             member.Email,
		Month:             month,
		TotalMeals:        summary.MemberMeals[member.ID],
		RegistrationCount: len(regs),
		Breakdown:         breakdown,
	}, nil
}
