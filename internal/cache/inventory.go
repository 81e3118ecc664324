package cache

import (
	"context"
	"log/slog"
	"time"
)

const PostKeyPrefix = "post:"

// PostTTL bounds how long a post can be served stale if an invalidation is lost.
const PostTTL = 30 * time.Minute

func PostKey(postID string) string {
	return PostKeyPrefix + postID
}

func Invalidate(ctx context.Context, key string) {
	if client == nil {
		return
	}
	if err := client.Del(ctx, key, leaseKey(key)).Err(); err != nil {
		slog.WarnContext(ctx, "cache invalidate failed", "key", key, "error", err)
	}
}

func InvalidatePost(ctx context.Context, postID string) {
	Invalidate(ctx, PostKey(postID))
}
