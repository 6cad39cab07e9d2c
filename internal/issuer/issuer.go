// Package issuer is the boundary to the external credential provider. The
// engine never mints credentials itself; it asks the provider to issue a
// time-limited grant under trust conditions and later to invalidate it.
package issuer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrRoleNotFound is returned by Invalidate when the provider no longer
// knows the role; callers treat it as already invalidated.
var ErrRoleNotFound = errors.New("external role not found")

// TrustConditions restrict who may use the issued credential.
type TrustConditions struct {
	// ExternalID is a fresh random value minted per session; the provider
	// requires it on every use of the grant.
	ExternalID string
	// SourceCIDRs limits use to the given source ranges.
	SourceCIDRs []string
	// MFAMaxAge is the ceiling on how old the caller's MFA may be.
	MFAMaxAge time.Duration
	// Department tags the principal for provider-side conditions.
	Department string
}

// Credential is the issued secret material, handed to the caller exactly
// once and never persisted.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Grant is a successful issuance: the credential plus the provider-side
// handle needed for later invalidation.
type Grant struct {
	Credential     Credential
	ExternalRoleID string
}

// Issuer is the consumed provider interface. Issue is a single synchronous
// call; retry policy belongs to the caller.
type Issuer interface {
	Issue(ctx context.Context, policy []byte, trust TrustConditions, ttl time.Duration) (*Grant, error)
	Invalidate(ctx context.Context, externalRoleID string) error
}

// NewExternalID returns a fresh random external ID, 16 hex characters.
func NewExternalID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
