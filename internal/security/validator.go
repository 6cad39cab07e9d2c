// Package security applies the ordered request-security rules a session
// request must pass before anything is rendered, issued, or persisted.
package security

import (
	"errors"
	"fmt"
	"net/netip"

	"temp-access-vendor/internal/session/domain"
	"temp-access-vendor/internal/tier"
)

// Sentinel errors, one per rule. Matched with errors.Is.
var (
	ErrInvalidTier          = errors.New("unknown permission tier")
	ErrDurationExceeded     = errors.New("requested duration exceeds tier maximum")
	ErrMFARequired          = errors.New("tier requires MFA")
	ErrIPNotAllowed         = errors.New("source IP not in any allowed range")
	ErrDepartmentNotAllowed = errors.New("department not in allow-list")
)

// ValidationError wraps a rule sentinel with a stable code and detail for
// audit records. Never auto-retried: the request itself must change.
type ValidationError struct {
	Code   string
	Detail string
	rule   error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.rule.Error(), e.Detail)
	}
	return e.rule.Error()
}

func (e *ValidationError) Unwrap() error { return e.rule }

// Code returns the stable snake_case code for a validation error, or "" when
// err is not one.
func Code(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

func ruleError(rule error, code, detail string) *ValidationError {
	return &ValidationError{Code: code, Detail: detail, rule: rule}
}

// Config is the immutable rule configuration injected at construction.
type Config struct {
	AllowedCIDRs       []netip.Prefix
	AllowedDepartments []string
}

// DefaultConfig allows the RFC 1918 private ranges and the stock departments.
func DefaultConfig() Config {
	return Config{
		AllowedCIDRs:       mustParseCIDRs("10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"),
		AllowedDepartments: []string{"Engineering", "DevOps", "Security"},
	}
}

// ParseCIDRs parses the configured ranges, rejecting malformed entries at
// startup rather than at request time.
func ParseCIDRs(ranges []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(ranges))
	for _, r := range ranges {
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return nil, fmt.Errorf("bad CIDR %q: %w", r, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func mustParseCIDRs(ranges ...string) []netip.Prefix {
	out, err := ParseCIDRs(ranges)
	if err != nil {
		panic(err)
	}
	return out
}

// Validator evaluates the rules against a request. Pure: no I/O, no clock,
// identical input always yields the identical result.
type Validator struct {
	cfg   Config
	tiers tier.Registry
}

// NewValidator returns a Validator over the given config and tier registry.
func NewValidator(cfg Config, tiers tier.Registry) *Validator {
	return &Validator{cfg: cfg, tiers: tiers}
}

// Validate applies the rules in order and returns the first failure as a
// *ValidationError, or nil when the request passes all of them.
func (v *Validator) Validate(req domain.Request) error {
	profile, ok := v.tiers.Get(req.Tier)
	if !ok {
		return ruleError(ErrInvalidTier, "invalid_tier", fmt.Sprintf("tier %q", req.Tier))
	}

	d := req.Duration()
	if d <= 0 || d > profile.MaxDuration {
		return ruleError(ErrDurationExceeded, "duration_exceeded",
			fmt.Sprintf("requested %s, tier %s allows at most %s", d, profile.Name, profile.MaxDuration))
	}

	if profile.MFARequired && !req.MFAUsed {
		return ruleError(ErrMFARequired, "mfa_required", fmt.Sprintf("tier %s", profile.Name))
	}

	if req.SourceIP != "" {
		addr, err := netip.ParseAddr(req.SourceIP)
		if err != nil {
			return ruleError(ErrIPNotAllowed, "ip_not_allowed", fmt.Sprintf("unparsable address %q", req.SourceIP))
		}
		allowed := false
		for _, p := range v.cfg.AllowedCIDRs {
			if p.Contains(addr) {
				allowed = true
				break
			}
		}
		if !allowed {
			return ruleError(ErrIPNotAllowed, "ip_not_allowed", req.SourceIP)
		}
	}

	if req.Department != "" && len(v.cfg.AllowedDepartments) > 0 {
		member := false
		for _, d := range v.cfg.AllowedDepartments {
			if d == req.Department {
				member = true
				break
			}
		}
		if !member {
			return ruleError(ErrDepartmentNotAllowed, "department_not_allowed", req.Department)
		}
	}

	return nil
}
