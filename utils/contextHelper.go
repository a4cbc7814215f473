package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/ricemill_stock/appctx"
)

var (
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// ActorFromContext is the username recorded on created_by / approved_by.
func ActorFromContext(ctx context.Context) string {
	if name, ok := GetUsernameFromContext(ctx); ok && name != "" {
		return name
	}
	return "system"
}
