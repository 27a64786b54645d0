package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
)

type roleRequest struct {
	Role models.UserRole `json:"role"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (a *api) createMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewMember
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		member, err := a.members.CreateMember(c.Request.Context(), req)
		if err != nil {
			respondError(c, a.logger, "create member", req.Email, err)
			return
		}
		token, err := utils.JwtGenerate(member.ID, member.Email, string(member.Role))
		if err != nil {
			respondError(c, a.logger, "create member", member.ID, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "member created", "member": member, "token": token})
	}
}

// issueToken signs a fresh bearer token for an existing member.
func (a *api) issueToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := a.memberId(c, "issue token")
		if !ok {
			return
		}
		member, err := a.members.GetMember(c.Request.Context(), id)
		if err != nil {
			respondError(c, a.logger, "issue token", id, err)
			return
		}
		token, err := utils.JwtGenerate(member.ID, member.Email, string(member.Role))
		if err != nil {
			respondError(c, a.logger, "issue token", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"member_id": member.ID, "token": token})
	}
}

func (a *api) getProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		member, err := a.members.GetProfile(c.Request.Context())
		if err != nil {
			respondError(c, a.logger, "get profile", nil, err)
			return
		}
		c.JSON(http.StatusOK, member)
	}
}

func (a *api) updateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UpdateMemberProfile
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		member, err := a.members.UpdateProfile(c.Request.Context(), req)
		if err != nil {
			respondError(c, a.logger, "update profile", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "profile updated", "member": member})
	}
}

func (a *api) listMembers() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := a.members.ListMembers(c.Request.Context(), c.Query("role"), c.Query("department"))
		if err != nil {
			respondError(c, a.logger, "list members", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
	}
}

func (a *api) getRoleByEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := a.members.GetRoleByEmail(c.Request.Context(), c.Query("email"))
		if err != nil {
			respondError(c, a.logger, "get role", nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"role": role})
	}
}

func (a *api) memberId(c *gin.Context, operation string) (int, bool) {
	id, err := utils.ParseId(c.Param("userId"), "user id")
	if err != nil {
		respondError(c, a.logger, operation, nil, err)
		return 0, false
	}
	return id, true
}

func (a *api) updateRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := a.memberId(c, "update role")
		if !ok {
			return
		}
		var req roleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		member, err := a.members.UpdateRole(c.Request.Context(), id, req.Role)
		if err != nil {
			respondError(c, a.logger, "update role", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "role updated", "member": member})
	}
}

func (a *api) updateFixedDeposit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := a.memberId(c, "update fixed deposit")
		if !ok {
			return
		}
		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		member, err := a.members.UpdateFixedDeposit(c.Request.Context(), id, req.Amount)
		if err != nil {
			respondError(c, a.logger, "update fixed deposit", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "fixed deposit updated", "member": member})
	}
}

func (a *api) updateMosqueFee() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := a.memberId(c, "update mosque fee")
		if !ok {
			return
		}
		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		member, err := a.members.UpdateMosqueFee(c.Request.Context(), id, req.Amount)
		if err != nil {
			respondError(c, a.logger, "update mosque fee", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "mosque fee updated", "member": member})
	}
}

func (a *api) setActive() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := a.memberId(c, "update member status")
		if !ok {
			return
		}
		var req activeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
			badRequest(c, "is_active is required")
			return
		}
		member, err := a.members.SetActive(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, a.logger, "update member status", id, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "member status updated", "member": member})
	}
}
