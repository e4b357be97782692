package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// emitTimeout bounds one async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long binaries wait before shutting the OTel providers down so
// pending session events still reach the exporter. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync emits event in its own goroutine so session operations never wait on telemetry.
// The emit keeps ctx's values (trace and span ids end up on the log record) but not its
// cancellation, and is bounded by emitTimeout. Failures are logged to slog.Default.
// A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	emitCtx := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(emitCtx, emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			slog.Default().WarnContext(emitCtx, "telemetry: session event dropped",
				"event_type", event.EventType,
				"user_id", event.UserID,
				"sid", event.SessionID,
				"error", err,
			)
		}
	}()
}
