package locstore

import "go.uber.org/zap"

const (
	// DefaultMaxBlobSize is the ceiling for inline blob storage.
	DefaultMaxBlobSize = 1 << 20 // 1 MiB

	// DefaultBatchSize is the page size for bulk lookups.
	DefaultBatchSize = 500
)

// Option is a functional option for configuring New.
type Option func(*Router)

// WithMaxBlobSize sets the inline blob size ceiling.
func WithMaxBlobSize(n int64) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxBlobSize = n
		}
	}
}

// WithBatchSize sets the page size used to split bulk lookups.
func WithBatchSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger sets the router's logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}
