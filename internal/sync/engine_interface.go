package sync

import "context"

// Runner is the engine surface the scheduler and facade depend on, so tests
// can substitute a fake engine.
type Runner interface {
	// PerformSync runs one drain-then-pull cycle, or no-ops if one is
	// already in flight.
	PerformSync(ctx context.Context) error

	// EmergencyFlush persists pending outbox state without network calls.
	EmergencyFlush()
}

var _ Runner = (*Engine)(nil)
