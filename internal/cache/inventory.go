package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix = "user:%d"
	TripKeyPrefix = "trip:%s"
	DailyQuoteKey = "quote:daily"
)

const (
	UserTTL  = 5 * time.Minute
	TripTTL  = 10 * time.Minute
	QuoteTTL = time.Hour
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func TripKey(slug string) string {
	return fmt.Sprintf(TripKeyPrefix, slug)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateUser drops the cached row of a user.
func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

func InvalidateTrip(ctx context.Context, slug string) {
	Invalidate(ctx, TripKey(slug))
}
