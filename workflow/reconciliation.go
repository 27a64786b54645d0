package workflow

import (
	"time"

	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/shopspring/decimal"
)

// MemberPeriod is everything needed to settle one member for one month.
type MemberPeriod struct {
	Member        *models.Member
	TotalMeals    decimal.Decimal
	TotalDeposits decimal.Decimal
	// LiveBalance is the stored balance, which already includes TotalDeposits.
	LiveBalance decimal.Decimal
}

// SettleMember applies
//
//	newBalance = previousBalance + totalDeposits - mealCost - mosqueFee
//
// where previousBalance is the opening balance of the month, i.e. the live
// balance without the month's deposits that were credited when recorded.
func SettleMember(p MemberPeriod, mealRate decimal.Decimal) models.MemberFinalization {
	mealCost := p.TotalMeals.Mul(mealRate).Round(2)
	fee := p.Member.MosqueFee
	previous := p.LiveBalance.Sub(p.TotalDeposits)
	newBalance := previous.Add(p.TotalDeposits).Sub(mealCost).Sub(fee)
	return models.MemberFinalization{
		MemberId:        p.Member.ID,
		MemberName:      p.Member.Name,
		TotalMeals:      p.TotalMeals,
		TotalDeposits:   p.TotalDeposits,
		MealCost:        mealCost,
		MosqueFee:       fee,
		PreviousBalance: previous,
		NewBalance:      newBalance,
		BalanceBefore:   p.LiveBalance,
		Status:          models.BalanceStatusOf(newBalance),
	}
}

// ReconcileBalances settles every active member, including members without
// any activity, and stages one balance write per member.
func ReconcileBalances(
	active []*models.Member,
	summary ConsumptionSummary,
	deposits []*models.Deposit,
	balances []*models.MemberBalance,
	at time.Time,
) ([]models.MemberFinalization, []store.BalanceWrite, decimal.Decimal) {
	depositTotals := map[int]decimal.Decimal{}
	totalDeposits := decimal.Zero
	for _, d := range deposits {
		depositTotals[d.MemberId] = depositTotals[d.MemberId].Add(d.Amount)
		totalDeposits = totalDeposits.Add(d.Amount)
	}
	live := make(map[int]decimal.Decimal, len(balances))
	for _, b := range balances {
		live[b.MemberId] = b.Balance
	}

	details := make([]models.MemberFinalization, 0, len(active))
	writes := make([]store.BalanceWrite, 0, len(active))
	for _, m := range active {
		detail := SettleMember(MemberPeriod{
			Member:        m,
			TotalMeals:    summary.MemberMeals[m.ID],
			TotalDeposits: depositTotals[m.ID],
			LiveBalance:   live[m.ID],
		}, summary.MealRate)
		details = append(details, detail)
		writes = append(writes, store.BalanceWrite{
			MemberId: m.ID,
			Delta:    detail.NewBalance.Sub(detail.BalanceBefore),
			At:       at,
		})
	}
	return details, writes, totalDeposits
}

// RevertWrites stages the writes that undo a finalization: each balance moves
// back by what the finalization moved it.
func RevertWrites(fin *models.MonthlyFinalization, at time.Time) []store.BalanceWrite {
	writes := make([]store.BalanceWrite, 0, len(fin.MemberDetails))
	for _, d := range fin.MemberDetails {
		writes = append(writes, store.BalanceWrite{
			MemberId: d.MemberId,
			Delta:    d.BalanceBefore.Sub(d.NewBalance),
			At:       at,
		})
	}
	return writes
}
