package internaldefs

import (
	"github.com/MrEthical07/roleAuth/internal/metrics"
)

// CounterDef binds a counter id to its exported name.
type CounterDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

// HistogramDef binds a latency id to its exported name.
type HistogramDef struct {
	ID   metrics.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: metrics.LoginSuccess, Name: "roleauth_login_success_total", Help: "Successful login attempts."},
	{ID: metrics.LoginFailure, Name: "roleauth_login_failure_total", Help: "Failed login attempts."},
	{ID: metrics.LoginRateLimited, Name: "roleauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: metrics.AuthenticateSuccess, Name: "roleauth_authenticate_success_total", Help: "Tokens accepted by Authenticate."},
	{ID: metrics.AuthenticateFailure, Name: "roleauth_authenticate_failure_total", Help: "Tokens rejected by Authenticate."},
	{ID: metrics.SessionRevokedSeen, Name: "roleauth_session_revoked_seen_total", Help: "Valid tokens presented for a revoked session."},
	{ID: metrics.RoleSwitchSuccess, Name: "roleauth_role_switch_success_total", Help: "Completed role switches."},
	{ID: metrics.RoleSwitchFailure, Name: "roleauth_role_switch_failure_total", Help: "Role switches that failed after validation."},
	{ID: metrics.RoleSwitchRejected, Name: "roleauth_role_switch_rejected_total", Help: "Role switches rejected by validation."},
	{ID: metrics.RoleSwitchCompensated, Name: "roleauth_role_switch_compensated_total", Help: "Failed role switches rolled back."},
	{ID: metrics.RoleSwitchCompensationFailed, Name: "roleauth_role_switch_compensation_failed_total", Help: "Role switch rollbacks that did not complete."},
	{ID: metrics.RoleSwitchContended, Name: "roleauth_role_switch_contended_total", Help: "Role switches refused because another switch held the lock."},
	{ID: metrics.RoleSwitchRateLimited, Name: "roleauth_role_switch_rate_limited_total", Help: "Rate-limited role switches."},
	{ID: metrics.SessionCreated, Name: "roleauth_session_created_total", Help: "Created sessions."},
	{ID: metrics.SessionInvalidated, Name: "roleauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: metrics.Logout, Name: "roleauth_logout_total", Help: "Single-session logout operations."},
	{ID: metrics.LogoutAll, Name: "roleauth_logout_all_total", Help: "Logout-all operations."},
	{ID: metrics.AccessDenied, Name: "roleauth_access_denied_total", Help: "Requests denied by an authorization gate."},
}

var HistogramDefs = []HistogramDef{
	{ID: metrics.AuthenticateLatency, Name: "roleauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
	{ID: metrics.RoleSwitchLatency, Name: "roleauth_role_switch_latency_seconds", Help: "Role switch latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" attribute values for each bucket,
// including the final +Inf bucket.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// AuditDroppedName is the counter for events lost to dispatcher backpressure.
const AuditDroppedName = "roleauth_audit_dropped_total"

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [metrics.HistBucketCount]uint64 {
	var out [metrics.HistBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [metrics.HistBucketCount]uint64) [metrics.HistBucketCount]uint64 {
	var out [metrics.HistBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
