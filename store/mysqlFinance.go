package store

import (
	"context"

	"github.com/sami157/dining-management-server/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// applyBalanceWrites issues every write as a single bulk upsert.
// Existing rows are incremented so concurrent deposits are never overwritten.
func applyBalanceWrites(tx *gorm.DB, writes []BalanceWrite) error {
	if len(writes) == 0 {
		return nil
	}
	rows := make([]models.MemberBalance, 0, len(writes))
	for _, w := range writes {
		rows = append(rows, models.MemberBalance{
			MemberId:    w.MemberId,
			Balance:     w.Delta,
			LastUpdated: w.At,
		})
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":      gorm.Expr("balance + VALUES(balance)"),
			"last_updated": gorm.Expr("VALUES(last_updated)"),
		}),
	}).Create(&rows).Error
}

func (s *MySQLStore) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(deposit).Error; err != nil {
			return translate(err)
		}
		return applyBalanceWrites(tx, []BalanceWrite{{MemberId: deposit.MemberId, Delta: deposit.Amount, At: s.now()}})
	})
}

func (s *MySQLStore) GetDeposit(ctx context.Context, id int) (*models.Deposit, error) {
	var deposit models.Deposit
	if err := s.db.WithContext(ctx).First(&deposit, id).Error; err != nil {
		return nil, translate(err)
	}
	return &deposit, nil
}

func (s *MySQLStore) UpdateDeposit(ctx context.Context, deposit *models.Deposit, delta decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(deposit).Error; err != nil {
			return translate(err)
		}
		if delta.IsZero() {
			return nil
		}
		return applyBalanceWrites(tx, []BalanceWrite{{MemberId: deposit.MemberId, Delta: delta, At: s.now()}})
	})
}

func (s *MySQLStore) DeleteDeposit(ctx context.Context, deposit *models.Deposit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Deposit{}, deposit.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return applyBalanceWrites(tx, []BalanceWrite{{MemberId: deposit.MemberId, Delta: deposit.Amount.Neg(), At: s.now()}})
	})
}

func (s *MySQLStore) ListDeposits(ctx context.Context, filter models.DepositFilter) ([]*models.Deposit, error) {
	dbCtx := s.db.WithContext(ctx)
	if filter.Month != "" {
		dbCtx = dbCtx.Where("month = ?", filter.Month)
	}
	if filter.MemberId > 0 {
		dbCtx = dbCtx.Where("member_id = ?", filter.MemberId)
	}
	var deposits []*models.Deposit
	if err := dbCtx.Order("deposit_date DESC").Order("id DESC").Find(&deposits).Error; err != nil {
		return nil, err
	}
	return deposits, nil
}

func (s *MySQLStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	expense.Date = models.DateOnly(expense.Date)
	return translate(s.db.WithContext(ctx).Create(expense).Error)
}

func (s *MySQLStore) GetExpense(ctx context.Context, id int) (*models.Expense, error) {
	var expense models.Expense
	if err := s.db.WithContext(ctx).First(&expense, id).Error; err != nil {
		return nil, translate(err)
	}
	return &expense, nil
}

func (s *MySQLStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.Date = models.DateOnly(expense.Date)
	return translate(s.db.WithContext(ctx).Save(expense).Error)
}

func (s *MySQLStore) DeleteExpense(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Delete(&models.Expense{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]*models.Expense, error) {
	dbCtx := s.db.WithContext(ctx)
	if !filter.StartDate.IsZero() {
		dbCtx = dbCtx.Where("date >= ?", models.DateOnly(filter.StartDate))
	}
	if !filter.EndDate.IsZero() {
		dbCtx = dbCtx.Where("date <= ?", models.DateOnly(filter.EndDate))
	}
	var expenses []*models.Expense
	if err := dbCtx.Order("date DESC").Order("id DESC").Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *MySQLStore) GetBalance(ctx context.Context, memberId int) (*models.MemberBalance, error) {
	var balance models.MemberBalance
	if err := s.db.WithContext(ctx).Where("member_id = ?", memberId).First(&balance).Error; err != nil {
		return nil, translate(err)
	}
	return &balance, nil
}

func (s *MySQLStore) ListBalances(ctx context.Context) ([]*models.MemberBalance, error) {
	var balances []*models.MemberBalance
	if err := s.db.WithContext(ctx).Order("member_id").Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *MySQLStore) ApplyBalanceWrites(ctx context.Context, writes []BalanceWrite) error {
	return applyBalanceWrites(s.db.WithContext(ctx), writes)
}

func (s *MySQLStore) GetFinalization(ctx context.Context, month string) (*models.MonthlyFinalization, error) {
	var fin models.MonthlyFinalization
	if err := s.db.WithContext(ctx).Where("month = ?", month).First(&fin).Error; err != nil {
		return nil, translate(err)
	}
	return &fin, nil
}

func (s *MySQLStore) ListFinalizations(ctx context.Context) ([]*models.MonthlyFinalization, error) {
	var fins []*models.MonthlyFinalization
	if err := s.db.WithContext(ctx).Order("month DESC").Find(&fins).Error; err != nil {
		return nil, err
	}
	return fins, nil
}

func (s *MySQLStore) LatestFinalizationAfter(ctx context.Context, month string) (*models.MonthlyFinalization, error) {
	var fin models.MonthlyFinalization
	err := s.db.WithContext(ctx).
		Where("month > ?", month).
		Order("month DESC").
		First(&fin).Error
	if err != nil {
		return nil, translate(err)
	}
	return &fin, nil
}

func (s *MySQLStore) CommitFinalization(ctx context.Context, fin *models.MonthlyFinalization, writes []BalanceWrite) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fin).Error; err != nil {
			return translate(err)
		}
		return applyBalanceWrites(tx, writes)
	})
}

func (s *MySQLStore) RevertFinalization(ctx context.Context, fin *models.MonthlyFinalization, writes []BalanceWrite) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyBalanceWrites(tx, writes); err != nil {
			return err
		}
		result := tx.Where("month = ?", fin.Month).Delete(&models.MonthlyFinalization{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
