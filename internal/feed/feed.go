package feed

import "context"

// Feed produces tick events onto the bus until its context is done.
type Feed interface {
	// Connect prepares the feed. Implementations may fall back to an
	// alternative source when the upstream is unreachable.
	Connect(ctx context.Context) error
	// Run streams ticks until ctx is cancelled.
	Run(ctx context.Context) error
	// Close releases feed resources.
	Close()
}
