// Package delivery implements the delivery fanout (C8): primary-only
// filtering, per-tutor matching against the adaptive rating threshold,
// rate-limited DM/broadcast dispatch, and edit-on-click bookkeeping.
// Transport (send_dm/broadcast) is modeled as a narrow, nil-safe,
// fail-open interface boundary — the concrete messaging backend is an
// external system this package never imports.
package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Transport is the external messaging boundary: two operations, both
// returning a transport message id the caller persists to locate and
// later edit the delivered content (e.g. on click-count threshold
// crossings).
type Transport interface {
	// SendDM delivers content to tutorID, deduplicated by idempotencyKey
	// at the transport layer (in addition to our own pre-send dedup).
	SendDM(ctx context.Context, tutorID, content, idempotencyKey string) (transportMsgID string, err error)
	// Broadcast posts content to channel, or edits editTarget in place
	// when non-empty.
	Broadcast(ctx context.Context, channel, content string, editTarget string) (transportMsgID string, err error)
}

// LogTransport is a Transport that only logs: a standalone-runnable stand-in
// for a real DM/broadcast backend, which lives as an external collaborator
// outside this package. Wiring this by default keeps cmd/aggregator
// runnable without a messaging dependency configured; a deploy wires in a
// real Transport in its place.
type LogTransport struct{}

// SendDM implements Transport by logging and minting a synthetic message id.
func (LogTransport) SendDM(_ context.Context, tutorID, content, idempotencyKey string) (string, error) {
	slog.Info("dm delivery (log transport)", "tutor_id", tutorID, "idempotency_key", idempotencyKey, "content", content)
	return uuid.NewString(), nil
}

// Broadcast implements Transport by logging and minting a synthetic
// message id, or reusing editTarget when editing in place.
func (LogTransport) Broadcast(_ context.Context, channel, content, editTarget string) (string, error) {
	slog.Info("broadcast delivery (log transport)", "channel", channel, "edit_target", editTarget, "content", content)
	if editTarget != "" {
		return editTarget, nil
	}
	return uuid.NewString(), nil
}
