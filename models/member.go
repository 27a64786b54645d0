package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Member struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	Email        string          `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Mobile       string          `gorm:"size:20;not null" json:"mobile"`
	Building     string          `gorm:"size:100" json:"building"`
	Room         string          `gorm:"size:50;index" json:"room"`
	Bank         string          `gorm:"size:100" json:"bank"`
	Designation  string          `gorm:"size:100" json:"designation"`
	Department   string          `gorm:"size:100;index" json:"department"`
	Role         UserRole        `gorm:"type:enum('admin','manager','member','moderator','staff');default:member" json:"role"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	MosqueFee    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mosque_fee"`
	FixedDeposit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fixed_deposit"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMember struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email,max=100"`
	Mobile      string `json:"mobile" validate:"required"`
	Building    string `json:"building"`
	Room        string `json:"room"`
	Bank        string `json:"bank"`
	Designation string `json:"designation"`
	Department  string `json:"department"`
}

// UpdateMemberProfile holds the self-editable fields. Nil fields are left untouched.
type UpdateMemberProfile struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Mobile      *string `json:"mobile"`
	Building    *string `json:"building"`
	Room        *string `json:"room"`
	Bank        *string `json:"bank"`
	Designation *string `json:"designation"`
	Department  *string `json:"department"`
}

type MemberFilter struct {
	Role       UserRole
	Department string
	ActiveOnly bool
}

// Normalize fills defaults for rows written before the column existed.
func (m *Member) Normalize() {
	if m.IsActive == nil {
		active := true
		m.IsActive = &active
	}
	if m.Role == "" {
		m.Role = UserRoleMember
	}
}

func (m *Member) AfterFind(tx *gorm.DB) error {
	m.Normalize()
	return nil
}

func (m *Member) Active() bool {
	return m.IsActive == nil || *m.IsActive
}
