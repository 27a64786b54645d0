// Package store holds the persistence boundary of the dining server.
// MySQLStore is the production implementation; MemoryStore backs tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sami157/dining-management-server/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrLockBusy means another posting held the lock until the wait ran out.
	ErrLockBusy  = errors.New("lock is held by another posting")
)

// BalanceWrite moves one member's live balance by Delta.
// A missing balance row is created starting from zero.
type BalanceWrite struct {
	MemberId int
	Delta    decimal.Decimal
	At       time.Time
}

type Store interface {
	Ping(ctx context.Context) error
	// Lock serializes work on key across callers until release is called.
	Lock(ctx context.Context, key string) (release func(), err error)

	CreateMember(ctx context.Context, member *models.Member) error
	GetMember(ctx context.Context, id int) (*models.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)
	UpdateMember(ctx context.Context, member *models.Member) error
	ListMembers(ctx context.Context, filter models.MemberFilter) ([]*models.Member, error)

	CreateSchedules(ctx context.Context, schedules []*models.MealSchedule) error
	GetSchedule(ctx context.Context, id int) (*models.MealSchedule, error)
	GetScheduleByDate(ctx context.Context, date time.Time) (*models.MealSchedule, error)
	UpdateSchedule(ctx context.Context, schedule *models.MealSchedule) error
	ListSchedules(ctx context.Context, start, end time.Time) ([]*models.MealSchedule, error)

	CreateRegistration(ctx context.Context, reg *models.MealRegistration) error
	GetRegistration(ctx context.Context, id int) (*models.MealRegistration, error)
	UpdateRegistration(ctx context.Context, reg *models.MealRegistration) error
	DeleteRegistration(ctx context.Context, id int) error
	ListRegistrations(ctx context.Context, filter models.RegistrationFilter) ([]*models.MealRegistration, error)

	// CreateDeposit inserts the deposit and credits its amount to the member balance atomically.
	CreateDeposit(ctx context.Context, deposit *models.Deposit) error
	GetDeposit(ctx context.Context, id int) (*models.Deposit, error)
	// UpdateDeposit saves the deposit and moves the member balance by delta atomically.
	UpdateDeposit(ctx context.Context, deposit *models.Deposit, delta decimal.Decimal) error
	// DeleteDeposit removes the deposit and debits its amount from the member balance atomically.
	DeleteDeposit(ctx context.Context, deposit *models.Deposit) error
	ListDeposits(ctx context.Context, filter models.DepositFilter) ([]*models.Deposit, error)

	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, id int) (*models.Expense, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, id int) error
	ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]*models.Expense, error)

	GetBalance(ctx context.Context, memberId int) (*models.MemberBalance, error)
	ListBalances(ctx context.Context) ([]*models.MemberBalance, error)
	ApplyBalanceWrites(ctx context.Context, writes []BalanceWrite) error

	GetFinalization(ctx context.Context, month string) (*models.MonthlyFinalization, error)
	ListFinalizations(ctx context.Context) ([]*models.MonthlyFinalization, error)
	// LatestFinalizationAfter returns the newest finalization for a month after month, or ErrNotFound.
	LatestFinalizationAfter(ctx context.Context, month string) (*models.MonthlyFinalization, error)
	// CommitFinalization inserts the snapshot and applies writes as one unit.
	// ErrDuplicate means the month was already finalized.
	CommitFinalization(ctx context.Context, fin *models.MonthlyFinalization, writes []BalanceWrite) error
	// RevertFinalization applies writes and deletes the snapshot as one unit.
	RevertFinalization(ctx context.Context, fin *models.MonthlyFinalization, writes []BalanceWrite) error
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
