package reqctx

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const (
	keyRID    ctxKey = "rid"
	keyItemID ctxKey = "item_id"
	keyUserID ctxKey = "user_id"
)

// WithRID stores the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns correlation id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

func WithItemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyItemID, id)
}

func ItemID(ctx context.Context) string {
	v, _ := ctx.Value(keyItemID).(string)
	return v
}

func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyUserID, uid)
}

func UserID(ctx context.Context) string {
	v, _ := ctx.Value(keyUserID).(string)
	return v
}

// Logger returns the global logger annotated with whatever correlation
// fields the context carries.
func Logger(ctx context.Context) zerolog.Logger {
	lc := log.Logger.With()
	if rid := RID(ctx); rid != "" {
		lc = lc.Str("rid", rid)
	}
	if uid := UserID(ctx); uid != "" {
		lc = lc.Str("user", uid)
	}
	if id := ItemID(ctx); id != "" {
		lc = lc.Str("item", id)
	}
	return lc.Logger()
}
