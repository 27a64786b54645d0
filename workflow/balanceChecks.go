package workflow

import (
	"context"
	"sort"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/metrics"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BalanceDrift is a member whose stored balance disagrees with the ledger.
type BalanceDrift struct {
	MemberId int             `json:"member_id"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

func (d BalanceDrift) Difference() decimal.Decimal {
	return d.Expected.Sub(d.Stored)
}

// expectedBalances replays the ledger: every deposit credits, every
// finalized month debits meal cost and mosque fee.
func expectedBalances(deposits []*models.Deposit, finalizations []*models.MonthlyFinalization) map[int]decimal.Decimal {
	expected := map[int]decimal.Decimal{}
	for _, d := range deposits {
		expected[d.MemberId] = expected[d.MemberId].Add(d.Amount)
	}
	for _, f := range finalizations {
		for _, detail := range f.MemberDetails {
			expected[detail.MemberId] = expected[detail.MemberId].Sub(detail.MealCost).Sub(detail.MosqueFee)
		}
	}
	return expected
}

// CheckBalances compares every stored balance with the ledger replay.
func (w *FinanceWorkflow) CheckBalances(ctx context.Context) ([]BalanceDrift, error) {
	var (
		deposits      []*models.Deposit
		finalizations []*models.MonthlyFinalization
		balances      []*models.MemberBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		deposits, err = w.store.ListDeposits(gctx, models.DepositFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		finalizations, err = w.store.ListFinalizations(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = w.store.ListBalances(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		config.LogError(w.logger, "balanceChecks.go", "CheckBalances", "loading ledger", nil, err)
		return nil, err
	}

	expected := expectedBalances(deposits, finalizations)
	stored := make(map[int]decimal.Decimal, len(balances))
	for _, b := range balances {
		stored[b.MemberId] = b.Balance
	}
	for id := range stored {
		if _, ok := expected[id]; !ok {
			expected[id] = decimal.Zero
		}
	}

	var drifts []BalanceDrift
	for id, want := range expected {
		have := stored[id]
		if !have.Equal(want) {
			drifts = append(drifts, BalanceDrift{MemberId: id, Stored: have, Expected: want})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].MemberId < drifts[j].MemberId })

	metrics.SetBalanceDrift(len(drifts))
	if len(drifts) > 0 {
		w.logger.WithFields(logrus.Fields{
			"field":   "CheckBalances",
			"members": len(drifts),
		}).Warn("member balances drift from ledger")
	}
	return drifts, nil
}

// RebuildBalances moves every drifted balance onto the ledger value. It runs
// under the finance lock so no finalization can interleave.
func (w *FinanceWorkflow) RebuildBalances(ctx context.Context) ([]BalanceDrift, error) {
	release, err := w.acquireFinanceLock(ctx, "RebuildBalances", nil)
	if err != nil {
		return nil, err
	}
	defer release()

	drifts, err := w.CheckBalances(ctx)
	if err != nil {
		return nil, err
	}
	if len(drifts) == 0 {
		return nil, nil
	}
	now := w.now()
	writes := make([]store.BalanceWrite, 0, len(drifts))
	for _, d := range drifts {
		writes = append(writes, store.BalanceWrite{MemberId: d.MemberId, Delta: d.Difference(), At: now})
	}
	if err := w.store.ApplyBalanceWrites(ctx, writes); err != nil {
		config.LogError(w.logger, "balanceChecks.go", "RebuildBalances", "applying corrections", drifts, err)
		return nil, err
	}
	metrics.SetBalanceDrift(0)
	w.logger.WithFields(logrus.Fields{
		"field":   "RebuildBalances",
		"members": len(drifts),
	}).Info("member balances rebuilt from ledger")
	return drifts, nil
}
