package searcher

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/metrics"
)

type options struct {
	analyzer       string
	compression    string
	maxPendingDocs int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures Open.
type Option func(*options)

// WithAnalyzer selects the text analyzer by name ("standard" or
// "english"). Reopening an index with a different analyzer fails.
func WithAnalyzer(name string) Option {
	return func(o *options) { o.analyzer = name }
}

// WithCompression selects the snapshot codec: "zstd" (default), "lz4" or
// "none".
func WithCompression(name string) Option {
	return func(o *options) { o.compression = name }
}

// WithMaxPendingDocs commits automatically once n documents are pending.
func WithMaxPendingDocs(n int) Option {
	return func(o *options) { o.maxPendingDocs = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics registers the searcher's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.metrics = metrics.New(reg) }
}

// WithCollectors shares an existing set of collectors, as the daemon does
// between its HTTP middleware and the searcher.
func WithCollectors(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
