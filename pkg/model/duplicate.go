package model

// DuplicateGroupStatus is the lifecycle status of a duplicate group.
type DuplicateGroupStatus string

const (
	GroupActive   DuplicateGroupStatus = "active"
	GroupResolved DuplicateGroupStatus = "resolved"
)

// DuplicateGroup clusters assignments believed to advertise the same
// underlying opportunity across agencies.
type DuplicateGroup struct {
	ID                        string               `json:"id"`
	PrimaryAssignmentID       *string              `json:"primary_assignment_id,omitempty"`
	MemberCount               int                  `json:"member_count"`
	AvgConfidenceScore        float64              `json:"avg_confidence_score"`
	Status                    DuplicateGroupStatus `json:"status"`
	DetectionAlgorithmVersion int                  `json:"detection_algorithm_version"`
	Meta                      map[string]any       `json:"meta,omitempty"`
}

// MatchCandidate is one scored candidate returned by the duplicate
// detector's signal scoring step, prior to group creation/merge.
type MatchCandidate struct {
	Assignment *Assignment
	Score      float64
}
