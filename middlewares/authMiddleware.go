package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/utils"
	"github.com/sirupsen/logrus"
)

// MemberLookup is what the identity resolver needs from storage.
type MemberLookup interface {
	GetMember(ctx context.Context, id int) (*models.Member, error)
}

const bearerPrefix = "Bearer "

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware resolves the bearer token to a stored member and puts the
// member's id, name, email and current role on the request context. The role
// is read from storage, so role changes apply without reissuing tokens.
func AuthMiddleware(members MemberLookup, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if !strings.HasPrefix(auth, bearerPrefix) {
			unauthorized(c)
			return
		}
		token := strings.TrimSpace(auth[len(bearerPrefix):])

		validate, err := utils.JwtValidate(token)
		if err != nil || !validate.Valid {
			unauthorized(c)
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.ID <= 0 {
			unauthorized(c)
			return
		}

		member, err := members.GetMember(c.Request.Context(), claim.ID)
		if err != nil {
			if !utils.IsKind(err, utils.ErrorKindNotFound) {
				config.LogError(logger, "authMiddleware.go", "AuthMiddleware", "loading member", claim.ID, err)
			}
			unauthorized(c)
			return
		}
		if !member.Active() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "member is inactive"})
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetIdentityInContext(ctx, member.ID, member.Name, member.Email, string(member.Role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRoles lets the request through only when the caller has one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role, _ := utils.GetRoleFromContext(c.Request.Context())
		if !allowed[models.UserRole(role)] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// HasRole reports whether the caller of ctx has one of roles.
func HasRole(ctx context.Context, roles ...models.UserRole) bool {
	role, ok := utils.GetRoleFromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if models.UserRole(role) == r {
			return true
		}
	}
	return false
}
