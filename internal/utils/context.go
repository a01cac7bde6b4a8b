package utils

import (
	"context"

	"github.com/google/uuid"
)

type rqIDKey struct{}

// GetRequestIDFromCtx returns the request id stored in ctx, or an empty string
func GetRequestIDFromCtx(ctx context.Context) string {
	rqID, ok := ctx.Value(rqIDKey{}).(string)
	if !ok {
		return ""
	}
	return rqID
}

// CtxWithRqID returns a copy of ctx carrying rqID, generating one when rqID is empty
func CtxWithRqID(ctx context.Context, rqID string) context.Context {
	if rqID == "" {
		rqID = uuid.NewString()
	}
	return context.WithValue(ctx, rqIDKey{}, rqID)
}
