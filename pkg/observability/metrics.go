package observability

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total number of RPC requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spin_cashback_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)

	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spin_cashback_rpc_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	// ActiveRequests tracks currently active requests
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spin_cashback_rpc_active_requests",
			Help: "Number of active RPC requests",
		},
		[]string{"procedure"},
	)

	// FilesParsed counts uploads by detected format and result
	FilesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spin_cashback_files_parsed_total",
			Help: "Uploaded spreadsheets parsed, by format and result",
		},
		[]string{"format", "result"},
	)

	// RowsProcessed counts spin rows by how they were treated
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spin_cashback_rows_processed_total",
			Help: "Spin rows processed, by kind (paid, free_spin, skipped)",
		},
		[]string{"kind"},
	)

	// CashbackComputations counts engine verdicts
	CashbackComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spin_cashback_computations_total",
			Help: "Cashback computations, by eligibility",
		},
		[]string{"eligible"},
	)

	// ReportDuration tracks end-to-end report building time
	ReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spin_cashback_report_duration_seconds",
			Help:    "Time spent building a cashback report from an upload",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)
)

// NewMetricsInterceptor creates an interceptor that collects Prometheus metrics
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure

			ActiveRequests.WithLabelValues(procedure).Inc()
			defer ActiveRequests.WithLabelValues(procedure).Dec()

			start := time.Now()
			defer func() {
				RequestDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			}()

			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			RequestsTotal.WithLabelValues(procedure, code).Inc()

			return resp, err
		}
	}
}
