package worker

import (
	"context"

	"github.com/spec-kit/queue-service/internal/events"
)

// StartFanoutBridge runs the Redis-to-hub event bridge until the context is
// canceled. A nil bridge (Redis not configured) is a no-op.
func StartFanoutBridge(ctx context.Context, bridge *events.RedisBridge) {
	if bridge == nil {
		return
	}
	go bridge.Run(ctx)
}
