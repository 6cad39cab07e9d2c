package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// HTTPIssuer talks JSON over HTTP to the credential provider:
// POST /v1/roles to issue, DELETE /v1/roles/{id} to invalidate.
type HTTPIssuer struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPIssuer returns a client for the provider at baseURL. timeout bounds
// each call; <= 0 selects the default 5s.
func NewHTTPIssuer(apiKey, baseURL string, timeout time.Duration) *HTTPIssuer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPIssuer{
		APIKey:     apiKey,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type issueRequest struct {
	Policy           json.RawMessage `json:"policy"`
	ExternalID       string          `json:"external_id"`
	SourceCIDRs      []string        `json:"source_cidrs,omitempty"`
	MFAMaxAgeSeconds int64           `json:"mfa_max_age_seconds,omitempty"`
	Department       string          `json:"department,omitempty"`
	DurationSeconds  int64           `json:"duration_seconds"`
}

type issueResponse struct {
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"secret_access_key"`
	SessionToken    string    `json:"session_token"`
	Expiration      time.Time `json:"expiration"`
	ExternalRoleID  string    `json:"external_role_id"`
}

// Issue requests a grant for the policy under the trust conditions.
func (c *HTTPIssuer) Issue(ctx context.Context, policy []byte, trust TrustConditions, ttl time.Duration) (*Grant, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("issuer: base URL not configured")
	}
	body := issueRequest{
		Policy:           policy,
		ExternalID:       trust.ExternalID,
		SourceCIDRs:      trust.SourceCIDRs,
		MFAMaxAgeSeconds: int64(trust.MFAMaxAge.Seconds()),
		Department:       trust.Department,
		DurationSeconds:  int64(ttl.Seconds()),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/roles", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("issuer: issue failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("issuer: decode response: %w", err)
	}
	if out.ExternalRoleID == "" {
		return nil, fmt.Errorf("issuer: response missing external_role_id")
	}
	return &Grant{
		Credential: Credential{
			AccessKeyID:     out.AccessKeyID,
			SecretAccessKey: out.SecretAccessKey,
			SessionToken:    out.SessionToken,
			Expiration:      out.Expiration,
		},
		ExternalRoleID: out.ExternalRoleID,
	}, nil
}

// Invalidate asks the provider to revoke the grant. A 404 maps to
// ErrRoleNotFound.
func (c *HTTPIssuer) Invalidate(ctx context.Context, externalRoleID string) error {
	if c.BaseURL == "" {
		return fmt.Errorf("issuer: base URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/v1/roles/"+externalRoleID, nil)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrRoleNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("issuer: invalidate failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
