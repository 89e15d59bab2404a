package helpers

import (
	"context"
	"sync/atomic"
)

type replyCounter struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

type counterKey struct{}

// WithReplyCounter attaches a fresh reply counter to ctx.
func WithReplyCounter(ctx context.Context) context.Context {
	return context.WithValue(ctx, counterKey{}, &replyCounter{})
}

// CountReply records one message sent on behalf of the update behind ctx.
// Contexts without a counter are ignored.
func CountReply(ctx context.Context, keyboard bool) {
	rc, _ := ctx.Value(counterKey{}).(*replyCounter)
	if rc == nil {
		return
	}
	rc.messages.Add(1)
	if keyboard {
		rc.keyboard.Store(true)
	}
}

// ReplyCounts reports how many messages were sent and whether any of them
// carried a keyboard.
func ReplyCounts(ctx context.Context) (int, bool) {
	rc, _ := ctx.Value(counterKey{}).(*replyCounter)
	if rc == nil {
		return 0, false
	}
	return int(rc.messages.Load()), rc.keyboard.Load()
}
