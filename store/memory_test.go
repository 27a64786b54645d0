package store

import (
	"context"
	"testing"
	"time"

	"github.com/sami157/dining-management-server/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBalanceWritesIncrementAndCreate(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.ApplyBalanceWrites(ctx, []BalanceWrite{{MemberId: 1, Delta: decimal.NewFromInt(100), At: at}}))
	require.NoError(t, st.ApplyBalanceWrites(ctx, []BalanceWrite{{MemberId: 1, Delta: decimal.NewFromInt(-30), At: at}}))

	b, err := st.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, at, b.LastUpdated)

	_, err = st.GetBalance(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDepositLifecycleMovesBalance(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	d := &models.Deposit{MemberId: 5, Month: "2025-02", Amount: decimal.NewFromInt(100)}
	require.NoError(t, st.CreateDeposit(ctx, d))
	require.NotZero(t, d.ID)

	d.Amount = decimal.NewFromInt(250)
	require.NoError(t, st.UpdateDeposit(ctx, d, decimal.NewFromInt(150)))

	b, err := st.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(250)))

	require.NoError(t, st.DeleteDeposit(ctx, d))
	b, err = st.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.True(t, b.Balance.IsZero())

	assert.ErrorIs(t, st.DeleteDeposit(ctx, d), ErrNotFound)
}

func TestMemoryFinalizationOrdering(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	for _, m := range []string{"2025-01", "2025-03", "2025-02"} {
		require.NoError(t, st.CommitFinalization(ctx, &models.MonthlyFinalization{Month: m}, nil))
	}
	err := st.CommitFinalization(ctx, &models.MonthlyFinalization{Month: "2025-02"}, nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	latest, err := st.LatestFinalizationAfter(ctx, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-03", latest.Month)

	_, err = st.LatestFinalizationAfter(ctx, "2025-03")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := st.ListFinalizations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2025-03", all[0].Month)
	assert.Equal(t, "2025-01", all[2].Month)
}

func TestMemoryUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.CreateMember(ctx, &models.Member{Name: "A", Email: "a@example.com"}))
	err := st.CreateMember(ctx, &models.Member{Name: "B", Email: "A@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	date := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateRegistration(ctx, &models.MealRegistration{MemberId: 1, Date: date, MealType: models.MealTypeNight}))
	err = st.CreateRegistration(ctx, &models.MealRegistration{MemberId: 1, Date: date, MealType: models.MealTypeNight})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryLockSerializes(t *testing.T) {
	st := NewMemoryStore()
	release, err := st.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = st.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := st.Lock(context.Background(), "k")
	require.NoError(t, err)
	release2()
}
