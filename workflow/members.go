package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type MemberWorkflow struct {
	store  store.Store
	logger *logrus.Logger
}

func NewMemberWorkflow(st store.Store, logger *logrus.Logger) *MemberWorkflow {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemberWorkflow{store: st, logger: logger}
}

func validateMobile(mobile string) error {
	if err := utils.ValidatePhoneNumber(mobile, utils.CountryCode); err != nil {
		return utils.Validation("invalid mobile number")
	}
	return nil
}

func (w *MemberWorkflow) CreateMember(ctx context.Context, input models.NewMember) (*models.Member, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := validateMobile(input.Mobile); err != nil {
		return nil, err
	}
	if _, err := w.store.GetMemberByEmail(ctx, input.Email); err == nil {
		return nil, utils.Conflict("member with email %s already exists", input.Email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	member := &models.Member{
		Name:         strings.TrimSpace(input.Name),
		Email:        input.Email,
		Mobile:       input.Mobile,
		Building:     input.Building,
		Room:         input.Room,
		Bank:         input.Bank,
		Designation:  input.Designation,
		Department:   input.Department,
		Role:         models.UserRoleMember,
		IsActive:     utils.NewTrue(),
		MosqueFee:    decimal.Zero,
		FixedDeposit: decimal.Zero,
	}
	if err := w.store.CreateMember(ctx, member); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, utils.Conflict("member with email %s already exists", input.Email)
		}
		config.LogError(w.logger, "members.go", "CreateMember", "creating member", input, err)
		return nil, err
	}
	return member, nil
}

func (w *MemberWorkflow) GetMember(ctx context.Context, id int) (*models.Member, error) {
	member, err := w.store.GetMember(ctx, id)
	if err != nil {
		return nil, notFound(err, "member")
	}
	return member, nil
}

// GetProfile returns the calling member.
func (w *MemberWorkflow) GetProfile(ctx context.Context) (*models.Member, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, utils.Forbidden("no member in request")
	}
	return w.GetMember(ctx, userId)
}

func (w *MemberWorkflow) UpdateProfile(ctx context.Context, input models.UpdateMemberProfile) (*models.Member, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.Mobile != nil {
		if err := validateMobile(*input.Mobile); err != nil {
			return nil, err
		}
	}
	member, err := w.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		member.Name = strings.TrimSpace(*input.Name)
	}
	if input.Mobile != nil {
		member.Mobile = *input.Mobile
	}
	if input.Building != nil {
		member.Building = *input.Building
	}
	if input.Room != nil {
		member.Room = *input.Room
	}
	if input.Bank != nil {
		member.Bank = *input.Bank
	}
	if input.Designation != nil {
		member.Designation = *input.Designation
	}
	if input.Department != nil {
		member.Department = *input.Department
	}
	return w.save(ctx, member, "UpdateProfile")
}

func (w *MemberWorkflow) UpdateRole(ctx context.Context, id int, role models.UserRole) (*models.Member, error) {
	if !role.IsValid() {
		return nil, utils.Validation("role must be one of: %s", models.UserRoleNames())
	}
	member, err := w.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	member.Role = role
	return w.save(ctx, member, "UpdateRole")
}

func nonNegative(name string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return utils.Validation("%s must not be negative", name)
	}
	return nil
}

func (w *MemberWorkflow) UpdateFixedDeposit(ctx context.Context, id int, amount decimal.Decimal) (*models.Member, error) {
	if err := nonNegative("fixed_deposit", amount); err != nil {
		return nil, err
	}
	member, err := w.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	member.FixedDeposit = amount
	return w.save(ctx, member, "UpdateFixedDeposit")
}

// UpdateMosqueFee sets the fixed monthly fee charged at finalization.
func (w *MemberWorkflow) UpdateMosqueFee(ctx context.Context, id int, amount decimal.Decimal) (*models.Member, error) {
	if err := nonNegative("mosque_fee", amount); err != nil {
		return nil, err
	}
	member, err := w.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	member.MosqueFee = amount
	return w.save(ctx, member, "UpdateMosqueFee")
}

// SetActive toggles whether the member takes part in future finalizations.
func (w *MemberWorkflow) SetActive(ctx context.Context, id int, active bool) (*models.Member, error) {
	member, err := w.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	member.IsActive = &active
	return w.save(ctx, member, "SetActive")
}

// ListMembers filters by role and department; an unknown role is ignored.
func (w *MemberWorkflow) ListMembers(ctx context.Context, role, department string) ([]*models.Member, error) {
	filter := models.MemberFilter{Department: strings.TrimSpace(department)}
	if r := models.UserRole(role); r.IsValid() {
		filter.Role = r
	}
	return w.store.ListMembers(ctx, filter)
}

func (w *MemberWorkflow) GetRoleByEmail(ctx context.Context, email string) (models.UserRole, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", utils.Validation("email is required")
	}
	member, err := w.store.GetMemberByEmail(ctx, email)
	if err != nil {
		return "", notFound(err, "member")
	}
	return member.Role, nil
}

func (w *MemberWorkflow) save(ctx context.Context, member *models.Member, funcName string) (*models.Member, error) {
	if err := w.store.UpdateMember(ctx, member); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, utils.Conflict("member with email %s already exists", member.Email)
		}
		config.LogError(w.logger, "members.go", funcName, "saving member", member.ID, err)
		return nil, notFound(err, "member")
	}
	return member, nil
}
