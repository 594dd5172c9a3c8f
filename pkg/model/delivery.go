package model

import "time"

// Click is the monotone click counter keyed by external_id, paired with
// the most recent broadcast delivery so the editor loop can decide when
// the rendered click bucket has changed.
type Click struct {
	ExternalID string    `json:"external_id"`
	Count      int64     `json:"count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BroadcastMessage is the last broadcast-delivered content/chat/message
// tuple for an external_id, used to locate the post to edit.
type BroadcastMessage struct {
	ExternalID       string    `json:"external_id"`
	Channel          string    `json:"channel"`
	TransportMsgID   string    `json:"transport_message_id"`
	Content          string    `json:"content"`
	LastClickBucket  int       `json:"last_click_bucket"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TutorProfile is the external (out of scope) profile record consulted by
// delivery fanout for subject/level/location matching.
type TutorProfile struct {
	ID            string   `json:"id"`
	Subjects      []string `json:"subjects"`
	Levels        []string `json:"levels"`
	PostalLat     *float64 `json:"postal_lat,omitempty"`
	PostalLon     *float64 `json:"postal_lon,omitempty"`
	MaxDistanceKM *float64 `json:"max_distance_km,omitempty"`
}

// Rating records a per-(tutor, assignment) outcome used by the adaptive
// rating-threshold function that gates DM delivery.
type Rating struct {
	TutorID      string  `json:"tutor_id"`
	AssignmentID string  `json:"assignment_id"`
	Score        float64 `json:"score"`
	DistanceKM   float64 `json:"distance_km"`
}
