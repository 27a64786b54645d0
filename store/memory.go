package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sami157/dining-management-server/models"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process. Multi-record operations hold the
// store mutex for their whole duration, which gives them the same all-or-nothing
// behaviour as the MySQL transactions.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	seq           int
	members       map[int]*models.Member
	schedules     map[int]*models.MealSchedule
	registrations map[int]*models.MealRegistration
	deposits      map[int]*models.Deposit
	expenses      map[int]*models.Expense
	balances      map[int]*models.MemberBalance
	finalizations map[string]*models.MonthlyFinalization

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           func() time.Time { return time.Now().UTC() },
		members:       map[int]*models.Member{},
		schedules:     map[int]*models.MealSchedule{},
		registrations: map[int]*models.MealRegistration{},
		deposits:      map[int]*models.Deposit{},
		expenses:      map[int]*models.Expense{},
		balances:      map[int]*models.MemberBalance{},
		finalizations: map[string]*models.MonthlyFinalization{},
		locks:         map[string]chan struct{}{},
	}
}

func (s *MemoryStore) nextId() int {
	s.seq++
	return s.seq
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Lock(ctx context.Context, key string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func cloneMember(m *models.Member) *models.Member {
	c := *m
	if m.IsActive != nil {
		active := *m.IsActive
		c.IsActive = &active
	}
	return &c
}

func cloneSchedule(sc *models.MealSchedule) *models.MealSchedule {
	c := *sc
	c.AvailableMeals = slices.Clone(sc.AvailableMeals)
	return &c
}

func cloneFinalization(f *models.MonthlyFinalization) *models.MonthlyFinalization {
	c := *f
	c.ExpenseBreakdown = slices.Clone(f.ExpenseBreakdown)
	c.MemberDetails = slices.Clone(f.MemberDetails)
	return &c
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

func inRange(date, start, end time.Time) bool {
	if !start.IsZero() && date.Before(models.DateOnly(start)) {
		return false
	}
	if !end.IsZero() && date.After(models.DateOnly(end)) {
		return false
	}
	return true
}

func (s *MemoryStore) CreateMember(ctx context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if strings.EqualFold(m.Email, member.Email) {
			return fmt.Errorf("%w: email %s", ErrDuplicate, member.Email)
		}
	}
	member.Normalize()
	member.ID = s.nextId()
	member.CreatedAt = s.now()
	member.UpdatedAt = member.CreatedAt
	s.members[member.ID] = cloneMember(member)
	return nil
}

func (s *MemoryStore) GetMember(ctx context.Context, id int) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMember(m), nil
}

func (s *MemoryStore) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if strings.EqualFold(m.Email, email) {
			return cloneMember(m), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateMember(ctx context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[member.ID]; !ok {
		return ErrNotFound
	}
	for _, m := range s.members {
		if m.ID != member.ID && strings.EqualFold(m.Email, member.Email) {
			return fmt.Errorf("%w: email %s", ErrDuplicate, member.Email)
		}
	}
	member.Normalize()
	member.UpdatedAt = s.now()
	s.members[member.ID] = cloneMember(member)
	return nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, filter models.MemberFilter) ([]*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Member
	for _, m := range s.members {
		if filter.Role != "" && m.Role != filter.Role {
			continue
		}
		if filter.Department != "" && m.Department != filter.Department {
			continue
		}
		if filter.ActiveOnly && !m.Active() {
			continue
		}
		out = append(out, cloneMember(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room != out[j].Room {
			return out[i].Room < out[j].Room
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CreateSchedules(ctx context.Context, schedules []*models.MealSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := map[time.Time]bool{}
	for _, sc := range s.schedules {
		taken[sc.Date] = true
	}
	for _, sc := range schedules {
		d := models.DateOnly(sc.Date)
		if taken[d] {
			return fmt.Errorf("%w: schedule %s", ErrDuplicate, d.Format(models.DateLayout))
		}
		taken[d] = true
	}
	for _, sc := range schedules {
		sc.Normalize()
		sc.ID = s.nextId()
		sc.CreatedAt = s.now()
		sc.UpdatedAt = sc.CreatedAt
		s.schedules[sc.ID] = cloneSchedule(sc)
	}
	return nil
}

func (s *MemoryStore) GetSchedule(ctx context.Context, id int) (*models.MealSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSchedule(sc), nil
}

func (s *MemoryStore) GetScheduleByDate(ctx context.Context, date time.Time) (*models.MealSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := models.DateOnly(date)
	for _, sc := range s.schedules {
		if sc.Date.Equal(d) {
			return cloneSchedule(sc), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateSchedule(ctx context.Context, schedule *models.MealSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return ErrNotFound
	}
	schedule.Normalize()
	schedule.UpdatedAt = s.now()
	s.schedules[schedule.ID] = cloneSchedule(schedule)
	return nil
}

func (s *MemoryStore) ListSchedules(ctx context.Context, start, end time.Time) ([]*models.MealSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MealSchedule
	for _, sc := range s.schedules {
		if inRange(sc.Date, start, end) {
			out = append(out, cloneSchedule(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) CreateRegistration(ctx context.Context, reg *models.MealRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg.Normalize()
	for _, r := range s.registrations {
		if r.MemberId == reg.MemberId && r.Date.Equal(reg.Date) && r.MealType == reg.MealType {
			return fmt.Errorf("%w: registration", ErrDuplicate)
		}
	}
	reg.ID = s.nextId()
	reg.RegisteredAt = s.now()
	reg.UpdatedAt = reg.RegisteredAt
	s.registrations[reg.ID] = copyOf(reg)
	return nil
}

func (s *MemoryStore) GetRegistration(ctx context.Context, id int) (*models.MealRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOf(r), nil
}

func (s *MemoryStore) UpdateRegistration(ctx context.Context, reg *models.MealRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[reg.ID]; !ok {
		return ErrNotFound
	}
	reg.Normalize()
	reg.UpdatedAt = s.now()
	s.registrations[reg.ID] = copyOf(reg)
	return nil
}

func (s *MemoryStore) DeleteRegistration(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registrations[id]; !ok {
		return ErrNotFound
	}
	delete(s.registrations, id)
	return nil
}

func (s *MemoryStore) ListRegistrations(ctx context.Context, filter models.RegistrationFilter) ([]*models.MealRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MealRegistration
	for _, r := range s.registrations {
		if filter.MemberId > 0 && r.MemberId != filter.MemberId {
			continue
		}
		if !inRange(r.Date, filter.StartDate, filter.EndDate) {
			continue
		}
		out = append(out, copyOf(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// applyBalanceWrites must be called with s.mu held.
func (s *MemoryStore) applyBalanceWrites(writes []BalanceWrite) {
	for _, w := range writes {
		b, ok := s.balances[w.MemberId]
		if !ok {
			b = &models.MemberBalance{
				ID:        s.nextId(),
				MemberId:  w.MemberId,
				Balance:   decimal.Zero,
				CreatedAt: w.At,
			}
			s.balances[w.MemberId] = b
		}
		b.Balance = b.Balance.Add(w.Delta)
		b.LastUpdated = w.At
	}
}

func (s *MemoryStore) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deposit.ID = s.nextId()
	deposit.CreatedAt = s.now()
	deposit.UpdatedAt = deposit.CreatedAt
	s.deposits[deposit.ID] = copyOf(deposit)
	s.applyBalanceWrites([]BalanceWrite{{MemberId: deposit.MemberId, Delta: deposit.Amount, At: s.now()}})
	return nil
}

func (s *MemoryStore) GetDeposit(ctx context.Context, id int) (*models.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOf(d), nil
}

func (s *MemoryStore) UpdateDeposit(ctx context.Context, deposit *models.Deposit, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deposits[deposit.ID]; !ok {
		return ErrNotFound
	}
	deposit.UpdatedAt = s.now()
	s.deposits[deposit.ID] = copyOf(deposit)
	if !delta.IsZero() {
		s.applyBalanceWrites([]BalanceWrite{{MemberId: deposit.MemberId, Delta: delta, At: s.now()}})
	}
	return nil
}

func (s *MemoryStore) DeleteDeposit(ctx context.Context, deposit *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deposits[deposit.ID]; !ok {
		return ErrNotFound
	}
	delete(s.deposits, deposit.ID)
	s.applyBalanceWrites([]BalanceWrite{{MemberId: deposit.MemberId, Delta: deposit.Amount.Neg(), At: s.now()}})
	return nil
}

func (s *MemoryStore) ListDeposits(ctx context.Context, filter models.DepositFilter) ([]*models.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Deposit
	for _, d := range s.deposits {
		if filter.Month != "" && d.Month != filter.Month {
			continue
		}
		if filter.MemberId > 0 && d.MemberId != filter.MemberId {
			continue
		}
		out = append(out, copyOf(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepositDate.Equal(out[j].DepositDate) {
			return out[i].DepositDate.After(out[j].DepositDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expense.Date = models.DateOnly(expense.Date)
	expense.ID = s.nextId()
	expense.CreatedAt = s.now()
	expense.UpdatedAt = expense.CreatedAt
	s.expenses[expense.ID] = copyOf(expense)
	return nil
}

func (s *MemoryStore) GetExpense(ctx context.Context, id int) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOf(e), nil
}

func (s *MemoryStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[expense.ID]; !ok {
		return ErrNotFound
	}
	expense.Date = models.DateOnly(expense.Date)
	expense.UpdatedAt = s.now()
	s.expenses[expense.ID] = copyOf(expense)
	return nil
}

func (s *MemoryStore) DeleteExpense(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *MemoryStore) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Expense
	for _, e := range s.expenses {
		if inRange(e.Date, filter.StartDate, filter.EndDate) {
			out = append(out, copyOf(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetBalance(ctx context.Context, memberId int) (*models.MemberBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[memberId]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOf(b), nil
}

func (s *MemoryStore) ListBalances(ctx context.Context) ([]*models.MemberBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.MemberBalance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, copyOf(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberId < out[j].MemberId })
	return out, nil
}

func (s *MemoryStore) ApplyBalanceWrites(ctx context.Context, writes []BalanceWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyBalanceWrites(writes)
	return nil
}

func (s *MemoryStore) GetFinalization(ctx context.Context, month string) (*models.MonthlyFinalization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.finalizations[month]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFinalization(f), nil
}

func (s *MemoryStore) ListFinalizations(ctx context.Context) ([]*models.MonthlyFinalization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.MonthlyFinalization, 0, len(s.finalizations))
	for _, f := range s.finalizations {
		out = append(out, cloneFinalization(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

func (s *MemoryStore) LatestFinalizationAfter(ctx context.Context, month string) (*models.MonthlyFinalization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.MonthlyFinalization
	for m, f := range s.finalizations {
		if m > month && (latest == nil || m > latest.Month) {
			latest = f
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneFinalization(latest), nil
}

func (s *MemoryStore) CommitFinalization(ctx context.Context, fin *models.MonthlyFinalization, writes []BalanceWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finalizations[fin.Month]; ok {
		return fmt.Errorf("%w: finalization %s", ErrDuplicate, fin.Month)
	}
	fin.ID = s.nextId()
	s.finalizations[fin.Month] = cloneFinalization(fin)
	s.applyBalanceWrites(writes)
	return nil
}

func (s *MemoryStore) RevertFinalization(ctx context.Context, fin *models.MonthlyFinalization, writes []BalanceWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.finalizations[fin.Month]; !ok {
		return ErrNotFound
	}
	s.applyBalanceWrites(writes)
	delete(s.finalizations, fin.Month)
	return nil
}
