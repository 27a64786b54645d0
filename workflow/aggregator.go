package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/metrics"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ConsumptionSummary is the weighted meal consumption and spending of a date range.
type ConsumptionSummary struct {
	StartDate        time.Time               `json:"start_date"`
	EndDate          time.Time               `json:"end_date"`
	MemberMeals      map[int]decimal.Decimal `json:"member_meals"`
	TotalMealsServed decimal.Decimal         `json:"total_meals_served"`
	TotalExpenses    decimal.Decimal         `json:"total_expenses"`
	ExpenseBreakdown []models.CategoryTotal  `json:"expense_breakdown"`
	MealRate         decimal.Decimal         `json:"meal_rate"`
	SkippedCount     int                     `json:"skipped_count"`
}

type RunningMealRate struct {
	Month            string                 `json:"month"`
	AsOf             time.Time              `json:"as_of"`
	StartDate        time.Time              `json:"start_date"`
	EndDate          time.Time              `json:"end_date"`
	TotalMealsServed decimal.Decimal        `json:"total_meals_served"`
	TotalExpenses    decimal.Decimal        `json:"total_expenses"`
	ExpenseBreakdown []models.CategoryTotal `json:"expense_breakdown"`
	MealRate         decimal.Decimal        `json:"meal_rate"`
}

// MealRateOf divides expenses by weighted meals; no meals means a zero rate.
func MealRateOf(totalExpenses, totalMeals decimal.Decimal) decimal.Decimal {
	if !totalMeals.IsPositive() {
		return decimal.Zero
	}
	return totalExpenses.DivRound(totalMeals, models.MealRateScale)
}

// ComputeConsumption weighs every registration by its schedule slot and totals
// expenses by category. Registrations of members outside active still count
// towards the total served but get no per-member entry. A registration on a
// date without a schedule contributes nothing and is reported through logger.
func ComputeConsumption(
	logger *logrus.Logger,
	active []*models.Member,
	schedules []*models.MealSchedule,
	registrations []*models.MealRegistration,
	expenses []*models.Expense,
) ConsumptionSummary {
	summary := ConsumptionSummary{
		MemberMeals:      make(map[int]decimal.Decimal, len(active)),
		TotalMealsServed: decimal.Zero,
		TotalExpenses:    decimal.Zero,
	}
	for _, m := range active {
		summary.MemberMeals[m.ID] = decimal.Zero
	}

	byDate := make(map[time.Time]*models.MealSchedule, len(schedules))
	for _, sc := range schedules {
		byDate[models.DateOnly(sc.Date)] = sc
	}

	for _, reg := range registrations {
		sc, ok := byDate[models.DateOnly(reg.Date)]
		if !ok {
			summary.SkippedCount++
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":     "ComputeConsumption",
					"member_id": reg.MemberId,
					"date":      reg.Date.Format(models.DateLayout),
					"meal_type": reg.MealType,
				}).Warn("registration has no meal schedule; skipped")
			}
			continue
		}
		count := reg.NumberOfMeals
		if count <= 0 {
			count = 1
		}
		meals := sc.WeightFor(reg.MealType).Mul(decimal.NewFromInt(int64(count)))
		summary.TotalMealsServed = summary.TotalMealsServed.Add(meals)
		if current, ok := summary.MemberMeals[reg.MemberId]; ok {
			summary.MemberMeals[reg.MemberId] = current.Add(meals)
		}
	}

	categories := map[string]decimal.Decimal{}
	for _, e := range expenses {
		summary.TotalExpenses = summary.TotalExpenses.Add(e.Amount)
		categories[e.Category] = categories[e.Category].Add(e.Amount)
	}
	summary.ExpenseBreakdown = make([]models.CategoryTotal, 0, len(categories))
	for category, amount := range categories {
		summary.ExpenseBreakdown = append(summary.ExpenseBreakdown, models.CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(summary.ExpenseBreakdown, func(i, j int) bool {
		return summary.ExpenseBreakdown[i].Category < summary.ExpenseBreakdown[j].Category
	})

	summary.MealRate = MealRateOf(summary.TotalExpenses, summary.TotalMealsServed)
	return summary
}

type consumptionInputs struct {
	schedules     []*models.MealSchedule
	registrations []*models.MealRegistration
	expenses      []*models.Expense
}

// fetchConsumptionInputs issues the three range queries concurrently.
func (w *FinanceWorkflow) fetchConsumptionInputs(ctx context.Context, start, end time.Time) (consumptionInputs, error) {
	var in consumptionInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.schedules, err = w.store.ListSchedules(gctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		in.registrations, err = w.store.ListRegistrations(gctx, models.RegistrationFilter{StartDate: start, EndDate: end})
		return err
	})
	g.Go(func() error {
		var err error
		in.expenses, err = w.store.ListExpenses(gctx, models.ExpenseFilter{StartDate: start, EndDate: end})
		return err
	})
	if err := g.Wait(); err != nil {
		return consumptionInputs{}, err
	}
	return in, nil
}

// AggregateConsumption computes weighted consumption for [start, end] (inclusive dates).
func (w *FinanceWorkflow) AggregateConsumption(ctx context.Context, start, end time.Time, active []*models.Member) (ConsumptionSummary, error) {
	in, err := w.fetchConsumptionInputs(ctx, start, end)
	if err != nil {
		config.LogError(w.logger, "aggregator.go", "AggregateConsumption", "fetching range data", map[string]string{
			"start": start.Format(models.DateLayout),
			"end":   end.Format(models.DateLayout),
		}, err)
		return ConsumptionSummary{}, err
	}
	summary := ComputeConsumption(w.logger, active, in.schedules, in.registrations, in.expenses)
	summary.StartDate = models.DateOnly(start)
	summary.EndDate = models.DateOnly(end)
	return summary, nil
}

// RunningMealRate reports the meal rate of month from its first day up to asOf.
// asOf must fall inside month.
func (w *FinanceWorkflow) RunningMealRate(ctx context.Context, month string, asOf time.Time) (*RunningMealRate, error) {
	start, monthEnd, err := models.MonthRange(month)
	if err != nil {
		return nil, utils.Validation("%s", err.Error())
	}
	asOfDate := models.DateOnly(asOf)
	if asOfDate.Before(start) || asOfDate.After(monthEnd) {
		return nil, utils.Validation("date %s is outside month %s", asOfDate.Format(models.DateLayout), month)
	}
	end := asOfDate

	cacheKey := fmt.Sprintf("mealRate:%s:%s", month, end.Format(models.DateLayout))
	if w.cache != nil {
		var cached RunningMealRate
		hit, cacheErr := w.cache.GetObject(ctx, cacheKey, &cached)
		if cacheErr != nil {
			w.logger.WithFields(logrus.Fields{"field": "RunningMealRate", "key": cacheKey}).Warn("meal rate cache read failed: " + cacheErr.Error())
		}
		metrics.RecordMealRateCache(hit)
		if hit {
			return &cached, nil
		}
	}

	summary, err := w.AggregateConsumption(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}
	result := &RunningMealRate{
		Month:            month,
		AsOf:             asOfDate,
		StartDate:        start,
		EndDate:          end,
		TotalMealsServed: summary.TotalMealsServed,
		TotalExpenses:    summary.TotalExpenses,
		ExpenseBreakdown: summary.ExpenseBreakdown,
		MealRate:         summary.MealRate,
	}
	if w.cache != nil {
		if cacheErr := w.cache.SetObject(ctx, cacheKey, result, w.cacheTTL); cacheErr != nil {
			w.logger.WithFields(logrus.Fields{"field": "RunningMealRate", "key": cacheKey}).Warn("meal rate cache write failed: " + cacheErr.Error())
		}
	}
	return result, nil
}
