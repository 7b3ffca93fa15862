package orchestrator

import (
	"context"

	"finintel/pkg/corerr"
)

// checkCancellation is the explicit cancellation-token observation point
// spec.md §4.5/§5 requires between every stage of answer(): "stages must
// observe a cancellation token between sub-steps" and a timeout propagates
// as QueryTimedOut. The teacher's own pipeline has no equivalent — stages
// there run to completion uninterrupted — so this is new code, kept in the
// teacher's idiom of small, single-purpose helpers rather than folded into
// the orchestrator's main loop.
func checkCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return corerr.QueryTimedOut("ANSWER_CANCELLED", "answer call cancelled or timed out").WithUnderlying(ctx.Err())
	default:
		return nil
	}
}
