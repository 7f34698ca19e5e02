package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MCompensations           MetricKey = "reservation_compensations_total"
	MOrphans                 MetricKey = "reservation_orphans_total"
	MReconcileFindings       MetricKey = "reconcile_findings_total"
)

// MetricSpec describes how a metric key is exposed by a metrics backend.
type MetricSpec struct {
	Key       MetricKey
	Help      string
	Labels    []string
	Histogram bool
}

// Catalog lists every metric the application records.
func Catalog() []MetricSpec {
	return []MetricSpec{
		{Key: MUsecaseRequests, Help: "Total number of use case invocations.", Labels: []string{"use_case", "outcome"}},
		{Key: MUsecaseDuration, Help: "Duration of use case execution in seconds.", Labels: []string{"use_case"}, Histogram: true},
		{Key: MHTTPRequests, Help: "Total number of HTTP requests served.", Labels: []string{"method", "route", "status"}},
		{Key: MHTTPRequestDuration, Help: "Duration of HTTP requests in seconds.", Labels: []string{"method", "route", "status"}, Histogram: true},
		{Key: MExternalRequests, Help: "Total number of calls to external peers.", Labels: []string{"peer", "endpoint", "outcome"}},
		{Key: MExternalRequestDuration, Help: "Duration of calls to external peers in seconds.", Labels: []string{"peer", "endpoint"}, Histogram: true},
		{Key: MCompensations, Help: "Compensating releases attempted after a failed ledger write.", Labels: []string{"outcome"}},
		{Key: MOrphans, Help: "Reservations left inconsistent between inventory and ledger.", Labels: []string{"kind"}},
		{Key: MReconcileFindings, Help: "Inconsistencies found by the reconciliation sweep.", Labels: []string{"kind", "action"}},
	}
}
