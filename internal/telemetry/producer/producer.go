// Package producer emits stream events to Kafka.
package producer

import (
	"context"

	"temp-access-vendor/internal/telemetry"
)

// Producer emits stream events. Callers use it best-effort: log and ignore
// errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call
	// from a goroutine if needed.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. the Kafka writer). Safe to call if
	// already closed.
	Close() error
}
