// Package internaldefs holds the shared metric name tables used by the
// Prometheus and OTel exporters.
package internaldefs

import (
	"github.com/tossapp/authkit"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful login attempts."},
	{ID: authkit.MetricLoginRejected, Name: "authkit_login_rejected_total", Help: "Rejected login attempts."},
	{ID: authkit.MetricLoginLockedOut, Name: "authkit_login_locked_out_total", Help: "Login attempts denied by lockout."},
	{ID: authkit.MetricLoginTwoFactorRequired, Name: "authkit_login_two_factor_required_total", Help: "Logins stopped at the two-factor step."},
	{ID: authkit.MetricExternalLoginSignedIn, Name: "authkit_external_login_signed_in_total", Help: "Successful external sign-ins."},
	{ID: authkit.MetricExternalLoginNeedsLinking, Name: "authkit_external_login_needs_linking_total", Help: "External assertions with no linked account."},
	{ID: authkit.MetricExternalLoginNotAllowed, Name: "authkit_external_login_not_allowed_total", Help: "External sign-ins denied by policy."},
	{ID: authkit.MetricExternalLoginLockedOut, Name: "authkit_external_login_locked_out_total", Help: "External sign-ins denied by lockout."},
	{ID: authkit.MetricExternalLinkAdded, Name: "authkit_external_link_added_total", Help: "Provider links added to accounts."},
	{ID: authkit.MetricExternalRegisterSuccess, Name: "authkit_external_register_success_total", Help: "Accounts created from external assertions."},
	{ID: authkit.MetricRegisterSuccess, Name: "authkit_register_success_total", Help: "Successful registrations."},
	{ID: authkit.MetricRegisterDuplicate, Name: "authkit_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authkit.MetricRegisterFailure, Name: "authkit_register_failure_total", Help: "Registrations rejected by validation."},
	{ID: authkit.MetricPasswordChangeSuccess, Name: "authkit_password_change_success_total", Help: "Successful password changes."},
	{ID: authkit.MetricPasswordChangeInvalidOld, Name: "authkit_password_change_invalid_old_total", Help: "Password changes with a wrong old password."},
	{ID: authkit.MetricPasswordChangeReuseRejected, Name: "authkit_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: authkit.MetricEmailConfirmRequest, Name: "authkit_email_confirm_request_total", Help: "Email confirmation tokens issued."},
	{ID: authkit.MetricEmailConfirmSuccess, Name: "authkit_email_confirm_success_total", Help: "Successful email confirmations."},
	{ID: authkit.MetricEmailConfirmFailure, Name: "authkit_email_confirm_failure_total", Help: "Failed email confirmations."},
	{ID: authkit.MetricPasswordResetRequest, Name: "authkit_password_reset_request_total", Help: "Password reset requests."},
	{ID: authkit.MetricPasswordResetSuccess, Name: "authkit_password_reset_success_total", Help: "Completed password resets."},
	{ID: authkit.MetricPasswordResetFailure, Name: "authkit_password_reset_failure_total", Help: "Failed password reset redemptions."},
	{ID: authkit.MetricEmailSendFailure, Name: "authkit_email_send_failure_total", Help: "Recovery emails that failed to send."},
	{ID: authkit.MetricHashtagAdded, Name: "authkit_hashtag_added_total", Help: "Hashtags added to profiles."},
	{ID: authkit.MetricEmailChanged, Name: "authkit_email_changed_total", Help: "Profile email changes."},
}

var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricLoginLatency, Name: "authkit_login_latency_seconds", Help: "Login decision latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw bucket counts to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
