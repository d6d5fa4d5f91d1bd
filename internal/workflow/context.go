package workflow

import "context"

// WithEitherDone returns a context derived from a that is also cancelled
// when b is done. The returned cancel releases both registrations.
func WithEitherDone(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
