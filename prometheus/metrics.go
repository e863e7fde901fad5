package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_tenant_operations_total",
			Help: "Total number of tenant operations",
		},
		[]string{"operation"}, // operation can be "create", "update", "access", etc.
	)

	// Membership operation counter
	MembershipOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_roster_operations_total",
			Help: "Total number of membership roster operations",
		},
		[]string{"operation"}, // "add", "change_role", "remove", "confirm"
	)

	// Invitation operation counter
	InvitationOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_invitation_operations_total",
			Help: "Total number of invitation operations",
		},
		[]string{"operation"}, // "create", "accept", "reject", "cancel", "resend", "expire", "sweep"
	)

	// Quota operation counter
	QuotaOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_quota_operations_total",
			Help: "Total number of quota ledger operations",
		},
		[]string{"operation"}, // "provision", "increment", "decrement", "change_plan", "reset_period"
	)

	// Quota exceeded counter by tenant and resource
	QuotaExceededCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_quota_exceeded_total",
			Help: "Total number of quota limit hits by tenant and resource",
		},
		[]string{"tenant_id", "resource"},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_errors_total",
			Help: "Total number of authorization and validation errors",
		},
		[]string{"type"}, // type can be "forbidden", "invalid_token", "db_error" etc.
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "membership_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "membership_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membership_info",
			Help: "Information about the membership service",
		},
		[]string{"version"},
	)

	// Members per tenant
	MembersPerTenantGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "membership_members_per_tenant",
			Help: "Number of active members per tenant",
		},
		[]string{"tenant_id"},
	)
)

func init() {
	// Register counters
	prometheus.MustRegister(TenantOperationCounter)
	prometheus.MustRegister(MembershipOperationCounter)
	prometheus.MustRegister(InvitationOperationCounter)
	prometheus.MustRegister(QuotaOperationCounter)
	prometheus.MustRegister(QuotaExceededCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)

	// Register histograms
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	// Register gauges
	prometheus.MustRegister(InfoGauge)
	prometheus.MustRegister(MembersPerTenantGauge)

	// Set initial service info
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			// Record metrics
			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}

// RecordAuthError records an authorization or validation error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTenantOperation records a tenant operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordMembershipOperation records a roster operation
func RecordMembershipOperation(operation string) {
	MembershipOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordInvitationOperation records an invitation workflow operation
func RecordInvitationOperation(operation string) {
	InvitationOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordQuotaOperation records a quota ledger operation
func RecordQuotaOperation(operation string) {
	QuotaOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordQuotaExceeded records a quota limit hit by tenant and resource
func RecordQuotaExceeded(tenantID uint, resource string) {
	QuotaExceededCounter.With(prometheus.Labels{
		"tenant_id": strconv.FormatUint(uint64(tenantID), 10),
		"resource":  resource,
	}).Inc()
}

// UpdateMembersPerTenant updates the members per tenant gauge
func UpdateMembersPerTenant(tenantID uint, count int64) {
	MembersPerTenantGauge.With(prometheus.Labels{
		"tenant_id": strconv.FormatUint(uint64(tenantID), 10),
	}).Set(float64(count))
}
