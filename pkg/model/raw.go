// Package model holds the canonical domain types shared across the
// extraction pipeline: raw inbound posts, extraction jobs, assignments,
// duplicate groups, and the click/broadcast and tutor-facing records used
// by delivery and listing.
package model

import (
	"encoding/json"
	"time"
)

// RawMessage is an immutable ingested post, written by the external
// collector. (channel, message_id) is the natural key; edits bump
// SourceLastSeen rather than mutating Text.
type RawMessage struct {
	ID             string          `json:"id"`
	Channel        string          `json:"channel"`
	MessageID      string          `json:"message_id"`
	Text           string          `json:"text"`
	Meta           json.RawMessage `json:"meta,omitempty"`
	PublishedAt    time.Time       `json:"published_at"`
	SourceLastSeen time.Time       `json:"source_last_seen"`
	CreatedAt      time.Time       `json:"created_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// Deleted reports whether the message has been soft-deleted.
func (r *RawMessage) Deleted() bool {
	return r != nil && r.DeletedAt != nil
}
