package workflow

import (
	"testing"

	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositLifecycleMovesBalance(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "a", 0)
	f.deposit(t, m.ID, "2025-03", 100)
	requireDecimal(t, "100", f.balance(t, m.ID))

	d := f.deposit(t, m.ID, "2025-03", 500)
	requireDecimal(t, "600", f.balance(t, m.ID))

	amount := decimal.NewFromInt(300)
	updated, err := f.finance.UpdateDeposit(f.ctx, d.ID, models.UpdateDeposit{Amount: &amount})
	require.NoError(t, err)
	requireDecimal(t, "300", updated.Amount)
	requireDecimal(t, "400", f.balance(t, m.ID))

	_, err = f.finance.DeleteDeposit(f.ctx, d.ID)
	require.NoError(t, err)
	requireDecimal(t, "100", f.balance(t, m.ID))

	deposits, err := f.finance.ListDeposits(f.ctx, models.DepositFilter{MemberId: m.ID})
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, "a", 0)

	_, err := f.finance.AddDeposit(f.ctx, models.NewDeposit{MemberId: m.ID, Month: "2025-03", Amount: decimal.Zero})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = f.finance.AddDeposit(f.ctx, models.NewDeposit{MemberId: m.ID, Month: "03-2025", Amount: decimal.NewFromInt(10)})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = f.finance.AddDeposit(f.ctx, models.NewDeposit{MemberId: 999, Month: "2025-03", Amount: decimal.NewFromInt(10)})
	requireKind(t, err, utils.ErrorKindNotFound)

	_, err = f.finance.DeleteDeposit(f.ctx, 999)
	requireKind(t, err, utils.ErrorKindNotFound)
}

func TestFinalizedMonthLocksDeposits(t *testing.T) {
	f := newFixture(t)
	a, _ := seedFebruary(t, f)
	open := f.deposit(t, a.ID, "2025-03", 20)
	deposits, err := f.finance.ListDeposits(f.ctx, models.DepositFilter{Month: "2025-02"})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	closed := deposits[0]

	_, err = f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	amount := decimal.NewFromInt(1)
	_, err = f.finance.UpdateDeposit(f.ctx, closed.ID, models.UpdateDeposit{Amount: &amount})
	requireKind(t, err, utils.ErrorKindConflict)
	assert.Equal(t, "cannot update deposit: month 2025-02 is finalized", err.Error())

	_, err = f.finance.DeleteDeposit(f.ctx, closed.ID)
	requireKind(t, err, utils.ErrorKindConflict)

	month := "2025-02"
	_, err = f.finance.UpdateDeposit(f.ctx, open.ID, models.UpdateDeposit{Month: &month})
	requireKind(t, err, utils.ErrorKindConflict)

	// late deposits for a closed month are still accepted
	_, err = f.finance.AddDeposit(f.ctx, models.NewDeposit{MemberId: a.ID, Month: "2025-02", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	requireDecimal(t, "325", f.balance(t, a.ID))
}

func TestFinalizedMonthLocksExpenses(t *testing.T) {
	f := newFixture(t)
	seedFebruary(t, f)
	open := f.expense(t, "2025-03-01", "gas", 30)
	expenses, err := f.finance.ListExpenses(f.ctx, "2025-02")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	closed := expenses[0]

	_, err = f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	amount := decimal.NewFromInt(1)
	_, err = f.finance.UpdateExpense(f.ctx, closed.ID, models.UpdateExpense{Amount: &amount})
	requireKind(t, err, utils.ErrorKindConflict)

	_, err = f.finance.DeleteExpense(f.ctx, closed.ID)
	requireKind(t, err, utils.ErrorKindConflict)

	back := "2025-02-27"
	_, err = f.finance.UpdateExpense(f.ctx, open.ID, models.UpdateExpense{Date: &back})
	requireKind(t, err, utils.ErrorKindConflict)

	category := "fuel"
	updated, err := f.finance.UpdateExpense(f.ctx, open.ID, models.UpdateExpense{Category: &category, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "fuel", updated.Category)

	_, err = f.finance.DeleteExpense(f.ctx, open.ID)
	require.NoError(t, err)
	all, err := f.finance.ListExpenses(f.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAddExpenseValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.finance.AddExpense(f.ctx, models.NewExpense{Date: "2025-03-01", Category: "gas", Amount: decimal.NewFromInt(-3)})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = f.finance.AddExpense(f.ctx, models.NewExpense{Date: "01/03/2025", Category: "gas", Amount: decimal.NewFromInt(3)})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = f.finance.AddExpense(f.ctx, models.NewExpense{Date: "2025-03-01", Amount: decimal.NewFromInt(3)})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = f.finance.ListExpenses(f.ctx, "2025-3")
	requireKind(t, err, utils.ErrorKindValidation)
}

func TestBalances(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, "a", 0)
	b := f.member(t, "b", 0)

	view, err := f.finance.GetBalance(f.ctx, b.ID)
	require.NoError(t, err)
	requireDecimal(t, "0", view.Balance)
	assert.Equal(t, models.BalanceStatusPaid, view.Status)
	assert.Nil(t, view.LastUpdated)

	f.deposit(t, a.ID, "2025-03", 80)
	views, err := f.finance.ListBalances(f.ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "a", views[0].MemberName)
	assert.Equal(t, models.BalanceStatusAdvance, views[0].Status)

	_, err = f.finance.GetBalance(f.ctx, 404)
	requireKind(t, err, utils.ErrorKindNotFound)
}
