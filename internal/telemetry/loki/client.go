// Package loki provides a minimal client to push audit log lines to Grafana
// Loki; the worker uses it to ship the Kafka audit stream.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are problematic in Loki label
// values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// eventFields is the subset of a stream event JSON used for labels and the
// entry timestamp.
type eventFields struct {
	ProjectID string `json:"projectId"`
	EventType string `json:"eventType"`
	Tier      string `json:"tier"`
	Result    string `json:"result"`
	CreatedAt string `json:"createdAt"`
}

// PushEventJSON parses the audit event JSON (a Kafka message value), derives
// labels and the timestamp, and pushes the raw line to Loki. If parsing
// fails the raw line is still pushed, with the current time and no extra
// labels.
func PushEventJSON(ctx context.Context, baseURL string, rawJSON []byte) error {
	line := string(rawJSON)
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields eventFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.ProjectID != "" {
			labels["project_id"] = fields.ProjectID
		}
		if fields.EventType != "" {
			labels["event_type"] = fields.EventType
		}
		if fields.Tier != "" {
			labels["tier"] = fields.Tier
		}
		if fields.Result != "" {
			labels["result"] = fields.Result
		}
		if fields.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil {
				ts = t
			} else if t, err := time.Parse(time.RFC3339, fields.CreatedAt); err == nil {
				ts = t
			}
		}
	}
	return PushEvent(ctx, baseURL, ts, line, labels)
}

// PushEvent sends a single log line to Loki at baseURL (e.g.
// http://localhost:3100). labels are added to the stream next to the fixed
// job=tav label. Returns an error if the request fails or Loki responds
// non-2xx.
func PushEvent(ctx context.Context, baseURL string, timestamp time.Time, line string, labels map[string]string) error {
	if baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = "tav"
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
