package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sami157/dining-management-server/models"
	"gorm.io/gorm"
)

const lockTimeoutSeconds = 30

type MySQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *MySQLStore) DB() *gorm.DB {
	return s.db
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// translate maps driver and gorm errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicateKeyErr(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Lock takes a MySQL advisory lock. GET_LOCK is connection scoped, so a
// dedicated connection is pinned until release.
func (s *MySQLStore) Lock(ctx context.Context, key string) (func(), error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var ok int
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", key, lockTimeoutSeconds).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if ok != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	return func() {
		var released int
		_ = conn.QueryRowContext(context.Background(), "SELECT RELEASE_LOCK(?)", key).Scan(&released)
		_ = conn.Close()
	}, nil
}

func (s *MySQLStore) CreateMember(ctx context.Context, member *models.Member) error {
	member.Normalize()
	return translate(s.db.WithContext(ctx).Create(member).Error)
}

func (s *MySQLStore) GetMember(ctx context.Context, id int) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, id).Error; err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

func (s *MySQLStore) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&member).Error; err != nil {
		return nil, translate(err)
	}
	return &member, nil
}

func (s *MySQLStore) UpdateMember(ctx context.Context, member *models.Member) error {
	member.Normalize()
	return translate(s.db.WithContext(ctx).Save(member).Error)
}

func (s *MySQLStore) ListMembers(ctx context.Context, filter models.MemberFilter) ([]*models.Member, error) {
	dbCtx := s.db.WithContext(ctx)
	if filter.Role != "" {
		dbCtx = dbCtx.Where("role = ?", filter.Role)
	}
	if filter.Department != "" {
		dbCtx = dbCtx.Where("department = ?", filter.Department)
	}
	if filter.ActiveOnly {
		dbCtx = dbCtx.Where("is_active = ? OR is_active IS NULL", true)
	}
	var members []*models.Member
	if err := dbCtx.Order("room").Order("id").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (s *MySQLStore) CreateSchedules(ctx context.Context, schedules []*models.MealSchedule) error {
	if len(schedules) == 0 {
		return nil
	}
	for _, sc := range schedules {
		sc.Normalize()
	}
	return translate(s.db.WithContext(ctx).Create(&schedules).Error)
}

func (s *MySQLStore) GetSchedule(ctx context.Context, id int) (*models.MealSchedule, error) {
	var schedule models.MealSchedule
	if err := s.db.WithContext(ctx).First(&schedule, id).Error; err != nil {
		return nil, translate(err)
	}
	return &schedule, nil
}

func (s *MySQLStore) GetScheduleByDate(ctx context.Context, date time.Time) (*models.MealSchedule, error) {
	var schedule models.MealSchedule
	if err := s.db.WithContext(ctx).Where("date = ?", models.DateOnly(date)).First(&schedule).Error; err != nil {
		return nil, translate(err)
	}
	return &schedule, nil
}

func (s *MySQLStore) UpdateSchedule(ctx context.Context, schedule *models.MealSchedule) error {
	schedule.Normalize()
	return translate(s.db.WithContext(ctx).Save(schedule).Error)
}

func (s *MySQLStore) ListSchedules(ctx context.Context, start, end time.Time) ([]*models.MealSchedule, error) {
	var schedules []*models.MealSchedule
	err := s.db.WithContext(ctx).
		Where("date BETWEEN ? AND ?", models.DateOnly(start), models.DateOnly(end)).
		Order("date").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *MySQLStore) CreateRegistration(ctx context.Context, reg *models.MealRegistration) error {
	reg.Normalize()
	return translate(s.db.WithContext(ctx).Create(reg).Error)
}

func (s *MySQLStore) GetRegistration(ctx context.Context, id int) (*models.MealRegistration, error) {
	var reg models.MealRegistration
	if err := s.db.WithContext(ctx).First(&reg, id).Error; err != nil {
		return nil, translate(err)
	}
	return &reg, nil
}

func (s *MySQLStore) UpdateRegistration(ctx context.Context, reg *models.MealRegistration) error {
	reg.Normalize()
	return translate(s.db.WithContext(ctx).Save(reg).Error)
}

func (s *MySQLStore) DeleteRegistration(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Delete(&models.MealRegistration{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) ListRegistrations(ctx context.Context, filter models.RegistrationFilter) ([]*models.MealRegistration, error) {
	dbCtx := s.db.WithContext(ctx)
	if filter.MemberId > 0 {
		dbCtx = dbCtx.Where("member_id = ?", filter.MemberId)
	}
	if !filter.StartDate.IsZero() {
		dbCtx = dbCtx.Where("date >= ?", models.DateOnly(filter.StartDate))
	}
	if !filter.EndDate.IsZero() {
		dbCtx = dbCtx.Where("date <= ?", models.DateOnly(filter.EndDate))
	}
	var regs []*models.MealRegistration
	if err := dbCtx.Order("date").Order("id").Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}
