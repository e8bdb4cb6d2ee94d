package auth

import (
	"context"

	"evalgo.org/deployhub/models"
)

type operatorKey struct{}

// WithOperator returns a context carrying the acting user.
func WithOperator(ctx context.Context, op *models.UserProfile) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// OperatorFrom returns the acting user, or nil for anonymous requests.
func OperatorFrom(ctx context.Context) *models.UserProfile {
	op, _ := ctx.Value(operatorKey{}).(*models.UserProfile)
	return op
}
