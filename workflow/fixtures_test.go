package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	st      *store.MemoryStore
	db      store.Store // seeded rows land here; st unless running on MySQL
	finance *FinanceWorkflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	return &fixture{
		ctx:     utils.SetIdentityInContext(context.Background(), 1, "Admin", "admin@example.com", string(models.UserRoleAdmin)),
		st:      st,
		db:      st,
		finance: NewFinanceWorkflow(st, config.NewDiscardLogger(), WithClock(func() time.Time { return fixedNow })),
	}
}

func (f *fixture) member(t *testing.T, name string, fee int64) *models.Member {
	t.Helper()
	m := &models.Member{
		Name:      name,
		Email:     fmt.Sprintf("%s@example.com", name),
		Mobile:    "01712345678",
		Role:      models.UserRoleMember,
		MosqueFee: decimal.NewFromInt(fee),
	}
	require.NoError(t, f.db.CreateMember(f.ctx, m))
	return m
}

func (f *fixture) schedule(t *testing.T, date string, slots ...models.MealSlot) *models.MealSchedule {
	t.Helper()
	d, err := models.ParseDate(date)
	require.NoError(t, err)
	if len(slots) == 0 {
		slots = []models.MealSlot{{MealType: models.MealTypeNight, IsAvailable: true}}
	}
	sc := &models.MealSchedule{Date: d, AvailableMeals: slots}
	require.NoError(t, f.db.CreateSchedules(f.ctx, []*models.MealSchedule{sc}))
	return sc
}

func (f *fixture) register(t *testing.T, memberId int, date string, mealType models.MealType, n int) {
	t.Helper()
	d, err := models.ParseDate(date)
	require.NoError(t, err)
	require.NoError(t, f.db.CreateRegistration(f.ctx, &models.MealRegistration{
		MemberId: memberId, Date: d, MealType: mealType, NumberOfMeals: n,
	}))
}

func (f *fixture) expense(t *testing.T, date, category string, amount int64) *models.Expense {
	t.Helper()
	e, err := f.finance.AddExpense(f.ctx, models.NewExpense{Date: date, Category: category, Amount: decimal.NewFromInt(amount)})
	require.NoError(t, err)
	return e
}

func (f *fixture) deposit(t *testing.T, memberId int, month string, amount int64) *models.Deposit {
	t.Helper()
	d, err := f.finance.AddDeposit(f.ctx, models.NewDeposit{MemberId: memberId, Month: month, Amount: decimal.NewFromInt(amount)})
	require.NoError(t, err)
	return d
}

func (f *fixture) balance(t *testing.T, memberId int) decimal.Decimal {
	t.Helper()
	view, err := f.finance.GetBalance(f.ctx, memberId)
	require.NoError(t, err)
	return view.Balance
}

func weight(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func requireKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := utils.KindOf(err)
	require.Truef(t, ok, "expected %s error, got untyped %v", kind, err)
	require.Equal(t, kind, got, err.Error())
}
