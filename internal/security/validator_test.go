package security

import (
	"errors"
	"testing"

	"temp-access-vendor/internal/session/domain"
	"temp-access-vendor/internal/tier"
)

func validRequest() domain.Request {
	return domain.Request{
		ProjectID:       "proj-1",
		UserID:          "alice",
		Tier:            "read-only",
		DurationSeconds: 4 * 3600,
		MFAUsed:         true,
		SourceIP:        "10.1.2.3",
		Department:      "Engineering",
		Reason:          "debugging production incident",
	}
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(DefaultConfig(), tier.Defaults())
}

func TestValidate_Pass(t *testing.T) {
	if err := newValidator(t).Validate(validRequest()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Rules(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*domain.Request)
		sentinel error
		code     string
	}{
		{"unknown tier", func(r *domain.Request) { r.Tier = "root" }, ErrInvalidTier, "invalid_tier"},
		{"zero duration", func(r *domain.Request) { r.DurationSeconds = 0 }, ErrDurationExceeded, "duration_exceeded"},
		{"negative duration", func(r *domain.Request) { r.DurationSeconds = -1 }, ErrDurationExceeded, "duration_exceeded"},
		{"over tier max", func(r *domain.Request) { r.DurationSeconds = 37 * 3600 }, ErrDurationExceeded, "duration_exceeded"},
		{"mfa missing", func(r *domain.Request) { r.MFAUsed = false }, ErrMFARequired, "mfa_required"},
		{"public ip", func(r *domain.Request) { r.SourceIP = "8.8.8.8" }, ErrIPNotAllowed, "ip_not_allowed"},
		{"garbage ip", func(r *domain.Request) { r.SourceIP = "not-an-ip" }, ErrIPNotAllowed, "ip_not_allowed"},
		{"unknown department", func(r *domain.Request) { r.Department = "Finance" }, ErrDepartmentNotAllowed, "department_not_allowed"},
	}
	v := newValidator(t)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := validRequest()
			c.mutate(&req)
			err := v.Validate(req)
			if err == nil {
				t.Fatal("Validate: want error")
			}
			if !errors.Is(err, c.sentinel) {
				t.Errorf("error = %v, want sentinel %v", err, c.sentinel)
			}
			if got := Code(err); got != c.code {
				t.Errorf("Code = %q, want %q", got, c.code)
			}
		})
	}
}

// A request failing several rules reports the first by evaluation order.
func TestValidate_RuleOrder(t *testing.T) {
	req := validRequest()
	req.DurationSeconds = 0
	req.MFAUsed = false
	req.SourceIP = "8.8.8.8"
	err := newValidator(t).Validate(req)
	if !errors.Is(err, ErrDurationExceeded) {
		t.Errorf("error = %v, want ErrDurationExceeded first", err)
	}

	req.Tier = "nope"
	err = newValidator(t).Validate(req)
	if !errors.Is(err, ErrInvalidTier) {
		t.Errorf("error = %v, want ErrInvalidTier first", err)
	}
}

func TestValidate_EmptyOptionalFieldsPass(t *testing.T) {
	req := validRequest()
	req.SourceIP = ""
	req.Department = ""
	if err := newValidator(t).Validate(req); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// Every default tier rejects a request one hour over its ceiling.
func TestValidate_PerTierDurationCeiling(t *testing.T) {
	v := newValidator(t)
	reg := tier.Defaults()
	for _, name := range reg.Names() {
		profile, _ := reg.Get(name)
		req := validRequest()
		req.Tier = name
		req.DurationSeconds = int64((profile.MaxDuration).Seconds()) + 3600
		if err := v.Validate(req); !errors.Is(err, ErrDurationExceeded) {
			t.Errorf("%s: error = %v, want ErrDurationExceeded", name, err)
		}
		req.DurationSeconds = int64((profile.MaxDuration).Seconds())
		if err := v.Validate(req); err != nil {
			t.Errorf("%s at ceiling: %v", name, err)
		}
	}
}

func TestValidate_BreakGlassTwoHoursRejected(t *testing.T) {
	req := validRequest()
	req.Tier = "break-glass"
	req.DurationSeconds = 2 * 3600
	if err := newValidator(t).Validate(req); !errors.Is(err, ErrDurationExceeded) {
		t.Errorf("error = %v, want ErrDurationExceeded", err)
	}
}

func TestValidate_Deterministic(t *testing.T) {
	v := newValidator(t)
	req := validRequest()
	req.SourceIP = "8.8.8.8"
	first := v.Validate(req)
	for i := 0; i < 10; i++ {
		if err := v.Validate(req); !errors.Is(err, ErrIPNotAllowed) || err.Error() != first.Error() {
			t.Fatalf("iteration %d: %v != %v", i, err, first)
		}
	}
}

func TestParseCIDRs(t *testing.T) {
	got, err := ParseCIDRs([]string{"10.0.0.0/8", "192.168.0.0/16"})
	if err != nil {
		t.Fatalf("ParseCIDRs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if _, err := ParseCIDRs([]string{"10.0.0.0"}); err == nil {
		t.Fatal("ParseCIDRs: want error for bare address")
	}
}
