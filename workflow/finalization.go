package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/metrics"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

type finalizationInputs struct {
	members  []*models.Member
	deposits []*models.Deposit
	balances []*models.MemberBalance
}

func validateMonth(month string) error {
	if !models.IsValidMonth(month) {
		return utils.Validation("%s", models.ErrInvalidMonth.Error())
	}
	return nil
}

func alreadyFinalized(month string) error {
	return utils.Conflict("month %s is already finalized", month)
}

// FinalizeMonth settles every active member for month and records an
// immutable snapshot. Balances and snapshot are committed together.
func (w *FinanceWorkflow) FinalizeMonth(ctx context.Context, month string) (fin *models.MonthlyFinalization, err error) {
	if err := validateMonth(month); err != nil {
		return nil, err
	}
	started := time.Now()
	ctx, span := w.tracer.Start(ctx, "FinanceWorkflow.FinalizeMonth")
	span.SetAttributes(attribute.String("month", month))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.RecordFinanceOperation("finalize", err)
		metrics.ObserveFinalization("finalize", time.Since(started))
	}()

	release, err := w.acquireFinanceLock(ctx, "FinalizeMonth", month)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := w.store.GetFinalization(ctx, month); err == nil {
		return nil, alreadyFinalized(month)
	} else if !errors.Is(err, store.ErrNotFound) {
		config.LogError(w.logger, "finalization.go", "FinalizeMonth", "checking existing finalization", month, err)
		return nil, err
	}

	start, end, _ := models.MonthRange(month)
	var (
		in      finalizationInputs
		summary ConsumptionSummary
		raw     consumptionInputs
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.members, err = w.store.ListMembers(gctx, models.MemberFilter{ActiveOnly: true})
		return err
	})
	g.Go(func() error {
		var err error
		in.deposits, err = w.store.ListDeposits(gctx, models.DepositFilter{Month: month})
		return err
	})
	g.Go(func() error {
		var err error
		in.balances, err = w.store.ListBalances(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		raw, err = w.fetchConsumptionInputs(gctx, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		config.LogError(w.logger, "finalization.go", "FinalizeMonth", "fetching month data", month, err)
		return nil, err
	}

	summary = ComputeConsumption(w.logger, in.members, raw.schedules, raw.registrations, raw.expenses)
	summary.StartDate, summary.EndDate = start, end

	now := w.now()
	details, writes, totalDeposits := ReconcileBalances(in.members, summary, in.deposits, in.balances, now)
	finalizedBy, _ := utils.GetUserIdFromContext(ctx)
	fin = &models.MonthlyFinalization{
		Month:            month,
		TotalMembers:     len(in.members),
		TotalMealsServed: summary.TotalMealsServed,
		TotalDeposits:    totalDeposits,
		TotalExpenses:    summary.TotalExpenses,
		MealRate:         summary.MealRate,
		ExpenseBreakdown: summary.ExpenseBreakdown,
		MemberDetails:    details,
		FinalizedBy:      finalizedBy,
		FinalizedAt:      now,
	}

	if err := w.store.CommitFinalization(ctx, fin, writes); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, alreadyFinalized(month)
		}
		config.LogError(w.logger, "finalization.go", "FinalizeMonth", "committing finalization", month, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("members", fin.TotalMembers),
		attribute.String("meal_rate", fin.MealRate.String()),
	)
	w.logger.WithFields(logrus.Fields{
		"field":              "FinalizeMonth",
		"month":              month,
		"total_members":      fin.TotalMembers,
		"total_meals_served": fin.TotalMealsServed.String(),
		"total_expenses":     fin.TotalExpenses.String(),
		"meal_rate":          fin.MealRate.String(),
		"skipped":            summary.SkippedCount,
		"finalized_by":       finalizedBy,
	}).Info("month finalized")
	return fin, nil
}

// UndoFinalization reverts the balance changes of month and removes its
// snapshot. Only the latest finalized month can be undone.
func (w *FinanceWorkflow) UndoFinalization(ctx context.Context, month string) (fin *models.MonthlyFinalization, err error) {
	if err := validateMonth(month); err != nil {
		return nil, err
	}
	started := time.Now()
	ctx, span := w.tracer.Start(ctx, "FinanceWorkflow.UndoFinalization")
	span.SetAttributes(attribute.String("month", month))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.RecordFinanceOperation("undo_finalization", err)
		metrics.ObserveFinalization("undo", time.Since(started))
	}()

	release, err := w.acquireFinanceLock(ctx, "UndoFinalization", month)
	if err != nil {
		return nil, err
	}
	defer release()

	fin, err = w.store.GetFinalization(ctx, month)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.NotFound("month %s is not finalized", month)
		}
		config.LogError(w.logger, "finalization.go", "UndoFinalization", "loading finalization", month, err)
		return nil, err
	}

	later, err := w.store.LatestFinalizationAfter(ctx, month)
	if err == nil {
		return nil, utils.Conflict("cannot undo %s: %s is finalized and must be undone first", month, later.Month)
	} else if !errors.Is(err, store.ErrNotFound) {
		config.LogError(w.logger, "finalization.go", "UndoFinalization", "checking later finalizations", month, err)
		return nil, err
	}

	if err := w.store.RevertFinalization(ctx, fin, RevertWrites(fin, w.now())); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.NotFound("month %s is not finalized", month)
		}
		config.LogError(w.logger, "finalization.go", "UndoFinalization", "reverting finalization", month, err)
		return nil, err
	}

	undoneBy, _ := utils.GetUserIdFromContext(ctx)
	w.logger.WithFields(logrus.Fields{
		"field":     "UndoFinalization",
		"month":     month,
		"members":   len(fin.MemberDetails),
		"undone_by": undoneBy,
	}).Info("month finalization undone")
	return fin, nil
}

func (w *FinanceWorkflow) GetFinalization(ctx context.Context, month string) (*models.MonthlyFinalization, error) {
	if err := validateMonth(month); err != nil {
		return nil, err
	}
	fin, err := w.store.GetFinalization(ctx, month)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.NotFound("month %s is not finalized", month)
		}
		return nil, err
	}
	return fin, nil
}

func (w *FinanceWorkflow) ListFinalizations(ctx context.Context) ([]*models.MonthlyFinalization, error) {
	return w.store.ListFinalizations(ctx)
}

// IsFinalized reports whether month has a snapshot.
func (w *FinanceWorkflow) IsFinalized(ctx context.Context, month string) (bool, error) {
	_, err := w.store.GetFinalization(ctx, month)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}
