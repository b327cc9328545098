package pendingexpiry

import (
	"context"
	"time"
)

type (
	// Expirer cancels pending transactions older than the cutoff.
	Expirer interface {
		ExpirePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	}

	Recorder interface {
		PendingExpired(n int)
	}
)
