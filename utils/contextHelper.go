package utils

import "context"

type contextKey string

const (
	identityKey      contextKey = "identity"
	tokenKey         contextKey = "token"
	correlationIdKey contextKey = "correlationId"
)

// Identity is the authenticated caller as resolved from the members table.
type Identity struct {
	UserId int
	Name   string
	Email  string
	Role   string
}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func GetIdentityFromContext(ctx context.Context) (Identity, bool) {
	return identityFrom(ctx)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	id, ok := identityFrom(ctx)
	return id.UserId, ok && id.UserId > 0
}

func GetEmailFromContext(ctx context.Context) (string, bool) {
	id, ok := identityFrom(ctx)
	return id.Email, ok && id.Email != ""
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	id, ok := identityFrom(ctx)
	return id.Role, ok && id.Role != ""
}

// SetRoleInContext overrides only the role, keeping any identity already attached.
func SetRoleInContext(ctx context.Context, role string) context.Context {
	id, _ := identityFrom(ctx)
	id.Role = role
	return context.WithValue(ctx, identityKey, id)
}

func SetIdentityInContext(ctx context.Context, userId int, name, email, role string) context.Context {
	return context.WithValue(ctx, identityKey, Identity{UserId: userId, Name: name, Email: email, Role: role})
}

func GetTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenKey).(string)
	return v, ok
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationIdKey).(string)
	return v, ok
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, correlationIdKey, correlationId)
}
