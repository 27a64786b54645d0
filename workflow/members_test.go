package workflow

import (
	"context"
	"testing"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemberWorkflow(f *fixture) *MemberWorkflow {
	return NewMemberWorkflow(f.st, config.NewDiscardLogger())
}

func TestCreateMember(t *testing.T) {
	f := newFixture(t)
	w := newMemberWorkflow(f)

	m, err := w.CreateMember(f.ctx, models.NewMember{
		Name:       " Rahim ",
		Email:      "Rahim@Example.com",
		Mobile:     "01712345678",
		Department: "CSE",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rahim", m.Name)
	assert.Equal(t, "rahim@example.com", m.Email)
	assert.Equal(t, models.UserRoleMember, m.Role)
	assert.True(t, m.Active())
	requireDecimal(t, "0", m.MosqueFee)

	_, err = w.CreateMember(f.ctx, models.NewMember{Name: "Other", Email: "rahim@example.com", Mobile: "01712345679"})
	requireKind(t, err, utils.ErrorKindConflict)

	_, err = w.CreateMember(f.ctx, models.NewMember{Name: "Bad", Email: "bad@example.com", Mobile: "12"})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = w.CreateMember(f.ctx, models.NewMember{Name: "Bad", Email: "not-an-email", Mobile: "01712345678"})
	requireKind(t, err, utils.ErrorKindValidation)
}

func TestUpdateProfileUsesCaller(t *testing.T) {
	f := newFixture(t)
	w := newMemberWorkflow(f)
	m := f.member(t, "rahim", 0)
	ctx := utils.SetIdentityInContext(context.Background(), m.ID, m.Name, m.Email, string(models.UserRoleMember))

	room := "B-204"
	updated, err := w.UpdateProfile(ctx, models.UpdateMemberProfile{Room: &room})
	require.NoError(t, err)
	assert.Equal(t, "B-204", updated.Room)

	profile, err := w.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B-204", profile.Room)

	bad := "abc"
	_, err = w.UpdateProfile(ctx, models.UpdateMemberProfile{Mobile: &bad})
	requireKind(t, err, utils.ErrorKindValidation)

	_, err = w.GetProfile(context.Background())
	requireKind(t, err, utils.ErrorKindForbidden)
}

func TestAdminMemberUpdates(t *testing.T) {
	f := newFixture(t)
	w := newMemberWorkflow(f)
	m := f.member(t, "rahim", 0)

	updated, err := w.UpdateRole(f.ctx, m.ID, models.UserRoleManager)
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleManager, updated.Role)
	_, err = w.UpdateRole(f.ctx, m.ID, "owner")
	requireKind(t, err, utils.ErrorKindValidation)

	updated, err = w.UpdateMosqueFee(f.ctx, m.ID, decimal.NewFromInt(50))
	require.NoError(t, err)
	requireDecimal(t, "50", updated.MosqueFee)
	_, err = w.UpdateMosqueFee(f.ctx, m.ID, decimal.NewFromInt(-1))
	requireKind(t, err, utils.ErrorKindValidation)

	updated, err = w.UpdateFixedDeposit(f.ctx, m.ID, decimal.NewFromInt(2000))
	require.NoError(t, err)
	requireDecimal(t, "2000", updated.FixedDeposit)

	updated, err = w.SetActive(f.ctx, m.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active())

	_, err = w.UpdateRole(f.ctx, 404, models.UserRoleStaff)
	requireKind(t, err, utils.ErrorKindNotFound)

	role, err := w.GetRoleByEmail(f.ctx, "RAHIM@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleManager, role)
	_, err = w.GetRoleByEmail(f.ctx, "")
	requireKind(t, err, utils.ErrorKindValidation)
}

func TestListMembersFilters(t *testing.T) {
	f := newFixture(t)
	w := newMemberWorkflow(f)
	a := f.member(t, "a", 0)
	b := f.member(t, "b", 0)
	a.Department = "CSE"
	require.NoError(t, f.st.UpdateMember(f.ctx, a))
	_, err := w.UpdateRole(f.ctx, b.ID, models.UserRoleStaff)
	require.NoError(t, err)

	all, err := w.ListMembers(f.ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	staff, err := w.ListMembers(f.ctx, "staff", "")
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, b.ID, staff[0].ID)

	cse, err := w.ListMembers(f.ctx, "wizard", "CSE")
	require.NoError(t, err)
	require.Len(t, cse, 1)
	assert.Equal(t, a.ID, cse[0].ID)
}
