// Package tier defines the permission profiles a session can be vended under.
// A Registry is built once at startup and injected; tiers never change at runtime.
package tier

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier is a named permission profile: how long a session may live, whether
// MFA is required, and the permission-boundary action patterns that cap
// whatever the tier's policy template requests.
type Tier struct {
	Name        string
	MaxDuration time.Duration
	MFARequired bool
	Boundary    []string
	NotifyOnUse bool
}

// Registry is an immutable name -> profile lookup.
type Registry struct {
	tiers map[string]Tier
}

// NewRegistry builds a registry from the given profiles. Later entries with
// the same name replace earlier ones.
func NewRegistry(tiers ...Tier) Registry {
	m := make(map[string]Tier, len(tiers))
	for _, t := range tiers {
		m[t.Name] = t
	}
	return Registry{tiers: m}
}

// Get returns the profile for name.
func (r Registry) Get(name string) (Tier, bool) {
	t, ok := r.tiers[name]
	return t, ok
}

// Names returns all tier names, sorted.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.tiers))
	for name := range r.tiers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Defaults returns the stock profiles. Boundaries for read-only and developer
// mirror the corresponding template grants; admin and break-glass are capped
// by duration rather than by action.
func Defaults() Registry {
	return NewRegistry(
		Tier{
			Name:        "read-only",
			MaxDuration: 36 * time.Hour,
			MFARequired: true,
			Boundary:    []string{"s3:GetObject", "s3:ListBucket", "ec2:Describe*", "iam:Get*", "iam:List*"},
		},
		Tier{
			Name:        "developer",
			MaxDuration: 36 * time.Hour,
			MFARequired: true,
			Boundary:    []string{"s3:*", "ec2:*", "lambda:*", "iam:Get*", "iam:List*", "iam:PassRole"},
		},
		Tier{
			Name:        "admin",
			MaxDuration: 8 * time.Hour,
			MFARequired: true,
			Boundary:    []string{"*"},
		},
		Tier{
			Name:        "break-glass",
			MaxDuration: 1 * time.Hour,
			MFARequired: true,
			Boundary:    []string{"*"},
			NotifyOnUse: true,
		},
	)
}

// fileTier is the YAML shape of one tier in an override file.
type fileTier struct {
	Name        string   `yaml:"name"`
	MaxDuration string   `yaml:"max_duration"`
	MFARequired *bool    `yaml:"mfa_required"`
	Boundary    []string `yaml:"boundary"`
	NotifyOnUse *bool    `yaml:"notify_on_use"`
}

type file struct {
	Tiers []fileTier `yaml:"tiers"`
}

// LoadFile reads an operator-supplied YAML file and merges it over Defaults:
// a named entry overrides the default profile of the same name, an unknown
// name adds a new profile. Omitted fields keep the default (or zero) value.
// An empty path returns Defaults unchanged. Parse errors are returned so the
// host can fail at startup rather than at request time.
func LoadFile(path string) (Registry, error) {
	reg := Defaults()
	if path == "" {
		return reg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("tiers file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Registry{}, fmt.Errorf("tiers file %s: %w", path, err)
	}
	for _, ft := range f.Tiers {
		if ft.Name == "" {
			return Registry{}, fmt.Errorf("tiers file %s: tier with empty name", path)
		}
		t, _ := reg.Get(ft.Name)
		t.Name = ft.Name
		if ft.MaxDuration != "" {
			d, err := time.ParseDuration(ft.MaxDuration)
			if err != nil || d <= 0 {
				return Registry{}, fmt.Errorf("tiers file %s: tier %s: bad max_duration %q", path, ft.Name, ft.MaxDuration)
			}
			t.MaxDuration = d
		}
		if t.MaxDuration <= 0 {
			return Registry{}, fmt.Errorf("tiers file %s: tier %s: max_duration is required", path, ft.Name)
		}
		if ft.MFARequired != nil {
			t.MFARequired = *ft.MFARequired
		}
		if ft.Boundary != nil {
			t.Boundary = ft.Boundary
		}
		if ft.NotifyOnUse != nil {
			t.NotifyOnUse = *ft.NotifyOnUse
		}
		reg.tiers[ft.Name] = t
	}
	return reg, nil
}
