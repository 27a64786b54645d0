package workflow

import (
	"context"
	"testing"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedFebruary builds the two member month: A deposits 500 and eats 10,
// B deposits nothing, eats 5 and pays a 50 fee, the mess spends 300.
func seedFebruary(t *testing.T, f *fixture) (*models.Member, *models.Member) {
	t.Helper()
	a := f.member(t, "a", 0)
	b := f.member(t, "b", 50)
	f.schedule(t, "2025-02-03")
	f.register(t, a.ID, "2025-02-03", models.MealTypeNight, 10)
	f.register(t, b.ID, "2025-02-03", models.MealTypeNight, 5)
	f.expense(t, "2025-02-03", "bazar", 300)
	f.deposit(t, a.ID, "2025-02", 500)
	return a, b
}

func TestFinalizeMonthSettlesMembers(t *testing.T) {
	f := newFixture(t)
	a, b := seedFebruary(t, f)

	fin, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	assert.Equal(t, 2, fin.TotalMembers)
	requireDecimal(t, "15", fin.TotalMealsServed)
	requireDecimal(t, "300", fin.TotalExpenses)
	requireDecimal(t, "500", fin.TotalDeposits)
	requireDecimal(t, "20", fin.MealRate)
	assert.Equal(t, 1, fin.FinalizedBy)

	da, ok := fin.Detail(a.ID)
	require.True(t, ok)
	requireDecimal(t, "200", da.MealCost)
	requireDecimal(t, "0", da.PreviousBalance)
	requireDecimal(t, "300", da.NewBalance)
	assert.Equal(t, models.BalanceStatusAdvance, da.Status)

	db, ok := fin.Detail(b.ID)
	require.True(t, ok)
	requireDecimal(t, "100", db.MealCost)
	requireDecimal(t, "50", db.MosqueFee)
	requireDecimal(t, "-150", db.NewBalance)
	assert.Equal(t, models.BalanceStatusDue, db.Status)

	requireDecimal(t, "300", f.balance(t, a.ID))
	requireDecimal(t, "-150", f.balance(t, b.ID))
}

func TestFinalizeMonthTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	a, b := seedFebruary(t, f)
	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	_, err = f.finance.FinalizeMonth(f.ctx, "2025-02")
	requireKind(t, err, utils.ErrorKindConflict)
	assert.Equal(t, "month 2025-02 is already finalized", err.Error())

	all, err := f.finance.ListFinalizations(f.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	requireDecimal(t, "300", f.balance(t, a.ID))
	requireDecimal(t, "-150", f.balance(t, b.ID))
}

// raceStore hides existing finalizations from the pre-check so the commit
// hits the unique month constraint.
type raceStore struct {
	*store.MemoryStore
}

func (s raceStore) GetFinalization(ctx context.Context, month string) (*models.MonthlyFinalization, error) {
	return nil, store.ErrNotFound
}

func TestFinalizeMonthDuplicateCommitIsConflict(t *testing.T) {
	f := newFixture(t)
	seedFebruary(t, f)
	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	racing := NewFinanceWorkflow(raceStore{f.st}, config.NewDiscardLogger())
	_, err = racing.FinalizeMonth(f.ctx, "2025-02")
	requireKind(t, err, utils.ErrorKindConflict)
}

func TestFinalizeMonthWithoutActivityLeavesBalance(t *testing.T) {
	f := newFixture(t)
	idle := f.member(t, "idle", 0)

	fin, err := f.finance.FinalizeMonth(f.ctx, "2025-01")
	require.NoError(t, err)

	d, ok := fin.Detail(idle.ID)
	require.True(t, ok)
	requireDecimal(t, "0", d.PreviousBalance)
	requireDecimal(t, "0", d.NewBalance)
	assert.Equal(t, models.BalanceStatusPaid, d.Status)
	requireDecimal(t, "0", fin.MealRate)
	requireDecimal(t, "0", f.balance(t, idle.ID))
}

func TestFinalizeMonthSkipsInactiveMembers(t *testing.T) {
	f := newFixture(t)
	a, _ := seedFebruary(t, f)
	gone := f.member(t, "gone", 10)
	gone.IsActive = utils.NewFalse()
	require.NoError(t, f.st.UpdateMember(f.ctx, gone))

	fin, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)
	_, ok := fin.Detail(gone.ID)
	assert.False(t, ok)
	_, ok = fin.Detail(a.ID)
	assert.True(t, ok)
	requireDecimal(t, "0", f.balance(t, gone.ID))
}

func TestFinalizeThenUndoRestoresBalances(t *testing.T) {
	f := newFixture(t)
	a, b := seedFebruary(t, f)
	before := map[int]string{a.ID: f.balance(t, a.ID).String(), b.ID: f.balance(t, b.ID).String()}

	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)
	_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
	require.NoError(t, err)

	requireDecimal(t, before[a.ID], f.balance(t, a.ID))
	requireDecimal(t, before[b.ID], f.balance(t, b.ID))
	_, err = f.finance.GetFinalization(f.ctx, "2025-02")
	requireKind(t, err, utils.ErrorKindNotFound)
}

func TestUndoKeepsDepositsRecordedAfterFinalization(t *testing.T) {
	f := newFixture(t)
	a, _ := seedFebruary(t, f)
	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	f.deposit(t, a.ID, "2025-03", 40)
	requireDecimal(t, "340", f.balance(t, a.ID))

	_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
	require.NoError(t, err)
	requireDecimal(t, "540", f.balance(t, a.ID))
}

func TestUndoRequiresLatestMonthFirst(t *testing.T) {
	f := newFixture(t)
	a, _ := seedFebruary(t, f)
	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	f.schedule(t, "2025-03-02")
	f.register(t, a.ID, "2025-03-02", models.MealTypeNight, 2)
	f.expense(t, "2025-03-02", "bazar", 50)
	_, err = f.finance.FinalizeMonth(f.ctx, "2025-03")
	require.NoError(t, err)

	_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
	requireKind(t, err, utils.ErrorKindConflict)
	assert.Equal(t, "cannot undo 2025-02: 2025-03 is finalized and must be undone first", err.Error())

	_, err = f.finance.UndoFinalization(f.ctx, "2025-03")
	require.NoError(t, err)
	requireDecimal(t, "300", f.balance(t, a.ID))
	_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
	require.NoError(t, err)
	requireDecimal(t, "500", f.balance(t, a.ID))
}

func TestUndoFinalizationErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.finance.UndoFinalization(f.ctx, "2025-02")
	requireKind(t, err, utils.ErrorKindNotFound)

	_, err = f.finance.UndoFinalization(f.ctx, "2025-2")
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = f.finance.FinalizeMonth(f.ctx, "202502")
	requireKind(t, err, utils.ErrorKindValidation)
}

func TestBalanceChecksMatchLedger(t *testing.T) {
	f := newFixture(t)
	a, b := seedFebruary(t, f)
	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	drifts, err := f.finance.CheckBalances(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	require.NoError(t, f.st.ApplyBalanceWrites(f.ctx, []store.BalanceWrite{{MemberId: b.ID, Delta: weight("7").Neg(), At: fixedNow}}))
	drifts, err = f.finance.CheckBalances(f.ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, b.ID, drifts[0].MemberId)
	requireDecimal(t, "7", drifts[0].Difference())

	fixed, err := f.finance.RebuildBalances(f.ctx)
	require.NoError(t, err)
	assert.Len(t, fixed, 1)
	requireDecimal(t, "-150", f.balance(t, b.ID))
	requireDecimal(t, "300", f.balance(t, a.ID))
}

func TestBalancesOfReportsRestoredBalances(t *testing.T) {
	f := newFixture(t)
	a, b := seedFebruary(t, f)
	_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	fin, err := f.finance.UndoFinalization(f.ctx, "2025-02")
	require.NoError(t, err)
	views, err := f.finance.BalancesOf(f.ctx, fin)
	require.NoError(t, err)
	require.Len(t, views, 2)

	byMember := map[int]*models.BalanceView{}
	for _, v := range views {
		byMember[v.MemberId] = v
	}
	requireDecimal(t, "500", byMember[a.ID].Balance)
	assert.Equal(t, models.BalanceStatusAdvance, byMember[a.ID].Status)
	requireDecimal(t, "0", byMember[b.ID].Balance)
	assert.Equal(t, models.BalanceStatusPaid, byMember[b.ID].Status)
	assert.Equal(t, "b", byMember[b.ID].MemberName)
}

func TestStoredMealRateReproducesMemberCosts(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, "a", 0)
	b := f.member(t, "b", 0)
	f.schedule(t, "2025-02-03")
	f.register(t, a.ID, "2025-02-03", models.MealTypeNight, 1)
	f.register(t, b.ID, "2025-02-03", models.MealTypeNight, 2)
	f.expense(t, "2025-02-03", "bazar", 100)

	fin, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
	require.NoError(t, err)

	requireDecimal(t, "33.3333333333333333", fin.MealRate)
	assert.True(t, fin.MealRate.Equal(fin.MealRate.Round(models.MealRateScale)))

	total := decimal.Zero
	for _, d := range fin.MemberDetails {
		requireDecimal(t, d.TotalMeals.Mul(fin.MealRate).Round(2).String(), d.MealCost)
		total = total.Add(d.MealCost)
	}
	requireDecimal(t, "100", total)
	da, ok := fin.Detail(a.ID)
	require.True(t, ok)
	requireDecimal(t, "33.33", da.MealCost)
	db, ok := fin.Detail(b.ID)
	require.True(t, ok)
	requireDecimal(t, "66.67", db.MealCost)
}
