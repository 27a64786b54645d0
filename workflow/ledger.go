package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/metrics"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ensureOpen rejects changes to a month that has been finalized. Callers hold
// the finance lock so a finalize cannot commit between the check and the write.
func (w *FinanceWorkflow) ensureOpen(ctx context.Context, month, action string) error {
	finalized, err := w.IsFinalized(ctx, month)
	if err != nil {
		return err
	}
	if finalized {
		return utils.Conflict("cannot %s: month %s is finalized", action, month)
	}
	return nil
}

func positiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return utils.Validation("amount must be a positive number")
	}
	return nil
}

// AddDeposit records a deposit and credits the member balance right away.
// Deposits may be recorded against a finalized month; they are carried by the balance.
func (w *FinanceWorkflow) AddDeposit(ctx context.Context, input models.NewDeposit) (deposit *models.Deposit, err error) {
	defer func() { metrics.RecordFinanceOperation("add_deposit", err) }()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := positiveAmount(input.Amount); err != nil {
		return nil, err
	}
	if err := validateMonth(input.Month); err != nil {
		return nil, err
	}
	if _, err := w.store.GetMember(ctx, input.MemberId); err != nil {
		return nil, notFound(err, "member")
	}

	// a deposit landing mid-finalize would split between the deposit and balance reads
	release, err := w.acquireFinanceLock(ctx, "AddDeposit", input)
	if err != nil {
		return nil, err
	}
	defer release()

	addedBy, _ := utils.GetUserIdFromContext(ctx)
	depositDate := w.now()
	if input.DepositDate != nil {
		depositDate = input.DepositDate.UTC()
	}
	deposit = &models.Deposit{
		MemberId:    input.MemberId,
		Month:       input.Month,
		Amount:      input.Amount,
		DepositDate: depositDate,
		Notes:       input.Notes,
		AddedBy:     addedBy,
	}
	if err := w.store.CreateDeposit(ctx, deposit); err != nil {
		config.LogError(w.logger, "ledger.go", "AddDeposit", "creating deposit", input, err)
		return nil, err
	}
	w.logger.WithFields(logrus.Fields{
		"field":      "AddDeposit",
		"deposit_id": deposit.ID,
		"member_id":  deposit.MemberId,
		"month":      deposit.Month,
		"amount":     deposit.Amount.String(),
	}).Info("deposit recorded")
	return deposit, nil
}

func (w *FinanceWorkflow) UpdateDeposit(ctx context.Context, id int, input models.UpdateDeposit) (deposit *models.Deposit, err error) {
	defer func() { metrics.RecordFinanceOperation("update_deposit", err) }()

	if input.Amount != nil {
		if err := positiveAmount(*input.Amount); err != nil {
			return nil, err
		}
	}
	if input.Month != nil {
		if err := validateMonth(*input.Month); err != nil {
			return nil, err
		}
	}

	release, err := w.acquireFinanceLock(ctx, "UpdateDeposit", id)
	if err != nil {
		return nil, err
	}
	defer release()

	deposit, err = w.store.GetDeposit(ctx, id)
	if err != nil {
		return nil, notFound(err, "deposit")
	}
	if err := w.ensureOpen(ctx, deposit.Month, "update deposit"); err != nil {
		return nil, err
	}
	if input.Month != nil && *input.Month != deposit.Month {
		if err := w.ensureOpen(ctx, *input.Month, "move deposit"); err != nil {
			return nil, err
		}
		deposit.Month = *input.Month
	}

	delta := decimal.Zero
	if input.Amount != nil {
		delta = input.Amount.Sub(deposit.Amount)
		deposit.Amount = *input.Amount
	}
	if input.DepositDate != nil {
		deposit.DepositDate = input.DepositDate.UTC()
	}
	if input.Notes != nil {
		deposit.Notes = *input.Notes
	}

	if err := w.store.UpdateDeposit(ctx, deposit, delta); err != nil {
		config.LogError(w.logger, "ledger.go", "UpdateDeposit", "saving deposit", deposit, err)
		return nil, notFound(err, "deposit")
	}
	return deposit, nil
}

func (w *FinanceWorkflow) DeleteDeposit(ctx context.Context, id int) (deposit *models.Deposit, err error) {
	defer func() { metrics.RecordFinanceOperation("delete_deposit", err) }()

	release, err := w.acquireFinanceLock(ctx, "DeleteDeposit", id)
	if err != nil {
		return nil, err
	}
	defer release()

	deposit, err = w.store.GetDeposit(ctx, id)
	if err != nil {
		return nil, notFound(err, "deposit")
	}
	if err := w.ensureOpen(ctx, deposit.Month, "delete deposit"); err != nil {
		return nil, err
	}
	if err := w.store.DeleteDeposit(ctx, deposit); err != nil {
		config.LogError(w.logger, "ledger.go", "DeleteDeposit", "deleting deposit", deposit, err)
		return nil, notFound(err, "deposit")
	}
	return deposit, nil
}

func (w *FinanceWorkflow) ListDeposits(ctx context.Context, filter models.DepositFilter) ([]*models.Deposit, error) {
	if filter.Month != "" {
		if err := validateMonth(filter.Month); err != nil {
			return nil, err
		}
	}
	return w.store.ListDeposits(ctx, filter)
}

func (w *FinanceWorkflow) AddExpense(ctx context.Context, input models.NewExpense) (expense *models.Expense, err error) {
	defer func() { metrics.RecordFinanceOperation("add_expense", err) }()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := positiveAmount(input.Amount); err != nil {
		return nil, err
	}
	date, err := models.ParseDate(input.Date)
	if err != nil {
		return nil, utils.Validation("%s", err.Error())
	}
	addedBy, _ := utils.GetUserIdFromContext(ctx)
	expense = &models.Expense{
		Date:        date,
		Category:    strings.TrimSpace(input.Category),
		Amount:      input.Amount,
		Description: input.Description,
		AddedBy:     addedBy,
	}
	if err := w.store.CreateExpense(ctx, expense); err != nil {
		config.LogError(w.logger, "ledger.go", "AddExpense", "creating expense", input, err)
		return nil, err
	}
	return expense, nil
}

func (w *FinanceWorkflow) UpdateExpense(ctx context.Context, id int, input models.UpdateExpense) (expense *models.Expense, err error) {
	defer func() { metrics.RecordFinanceOperation("update_expense", err) }()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Amount != nil {
		if err := positiveAmount(*input.Amount); err != nil {
			return nil, err
		}
	}
	var newDate *time.Time
	if input.Date != nil {
		date, err := models.ParseDate(*input.Date)
		if err != nil {
			return nil, utils.Validation("%s", err.Error())
		}
		newDate = &date
	}

	release, err := w.acquireFinanceLock(ctx, "UpdateExpense", id)
	if err != nil {
		return nil, err
	}
	defer release()

	expense, err = w.store.GetExpense(ctx, id)
	if err != nil {
		return nil, notFound(err, "expense")
	}
	if err := w.ensureOpen(ctx, models.MonthOf(expense.Date), "update expense"); err != nil {
		return nil, err
	}
	if newDate != nil {
		if err := w.ensureOpen(ctx, models.MonthOf(*newDate), "move expense"); err != nil {
			return nil, err
		}
		expense.Date = *newDate
	}
	if input.Category != nil {
		expense.Category = strings.TrimSpace(*input.Category)
	}
	if input.Amount != nil {
		expense.Amount = *input.Amount
	}
	if input.Description != nil {
		expense.Description = *input.Description
	}

	if err := w.store.UpdateExpense(ctx, expense); err != nil {
		config.LogError(w.logger, "ledger.go", "UpdateExpense", "saving expense", expense, err)
		return nil, notFound(err, "expense")
	}
	return expense, nil
}

func (w *FinanceWorkflow) DeleteExpense(ctx context.Context, id int) (expense *models.Expense, err error) {
	defer func() { metrics.RecordFinanceOperation("delete_expense", err) }()

	release, err := w.acquireFinanceLock(ctx, "DeleteExpense", id)
	if err != nil {
		return nil, err
	}
	defer release()

	expense, err = w.store.GetExpense(ctx, id)
	if err != nil {
		return nil, notFound(err, "expense")
	}
	if err := w.ensureOpen(ctx, models.MonthOf(expense.Date), "delete expense"); err != nil {
		return nil, err
	}
	if err := w.store.DeleteExpense(ctx, id); err != nil {
		config.LogError(w.logger, "ledger.go", "DeleteExpense", "deleting expense", id, err)
		return nil, notFound(err, "expense")
	}
	return expense, nil
}

// ListExpenses lists expenses of month, or all expenses when month is empty.
func (w *FinanceWorkflow) ListExpenses(ctx context.Context, month string) ([]*models.Expense, error) {
	var filter models.ExpenseFilter
	if month != "" {
		start, end, err := models.MonthRange(month)
		if err != nil {
			return nil, utils.Validation("%s", err.Error())
		}
		filter.StartDate, filter.EndDate = start, end
	}
	return w.store.ListExpenses(ctx, filter)
}

// GetBalance returns the live balance of a member; a member without a balance row is at zero.
func (w *FinanceWorkflow) GetBalance(ctx context.Context, memberId int) (*models.BalanceView, error) {
	member, err := w.store.GetMember(ctx, memberId)
	if err != nil {
		return nil, notFound(err, "member")
	}
	view := &models.BalanceView{
		MemberId:   member.ID,
		MemberName: member.Name,
		Balance:    decimal.Zero,
	}
	balance, err := w.store.GetBalance(ctx, memberId)
	switch {
	case err == nil:
		view.Balance = balance.Balance
		lastUpdated := balance.LastUpdated
		view.LastUpdated = &lastUpdated
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	view.Status = models.BalanceStatusOf(view.Balance)
	return view, nil
}

// ListBalances joins every stored balance with its member's name.
func (w *FinanceWorkflow) ListBalances(ctx context.Context) ([]*models.BalanceView, error) {
	balances, err := w.store.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	members, err := w.store.ListMembers(ctx, models.MemberFilter{})
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	views := make([]*models.BalanceView, 0, len(balances))
	for _, b := range balances {
		lastUpdated := b.LastUpdated
		views = append(views, &models.BalanceView{
			MemberId:    b.MemberId,
			MemberName:  names[b.MemberId],
			Balance:     b.Balance,
			Status:      models.BalanceStatusOf(b.Balance),
			LastUpdated: &lastUpdated,
		})
	}
	return views, nil
}

// BalancesOf returns the live balance of every member settled in fin, in
// snapshot order. Members without a balance row are reported at zero.
func (w *FinanceWorkflow) BalancesOf(ctx context.Context, fin *models.MonthlyFinalization) ([]*models.BalanceView, error) {
	balances, err := w.store.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	byMember := make(map[int]*models.MemberBalance, len(balances))
	for _, b := range balances {
		byMember[b.MemberId] = b
	}
	views := make([]*models.BalanceView, 0, len(fin.MemberDetails))
	for _, d := range fin.MemberDetails {
		view := &models.BalanceView{MemberId: d.MemberId, MemberName: d.MemberName, Balance: decimal.Zero}
		if b, ok := byMember[d.MemberId]; ok {
			view.Balance = b.Balance
			lastUpdated := b.LastUpdated
			view.LastUpdated = &lastUpdated
		}
		view.Status = models.BalanceStatusOf(view.Balance)
		views = append(views, view)
	}
	return views, nil
}
