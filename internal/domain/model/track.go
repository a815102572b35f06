package model

import "time"

// PositionSample is one entry of a track's position history.
type PositionSample struct {
	Timestamp time.Time `json:"timestamp"`
	CameraID  string    `json:"camera_id"`
	Position  Position  `json:"position"`
}

// PersonTrack is the persistent anonymous trajectory of one person.
type PersonTrack struct {
	PersonID  string    `json:"person_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	// ResolvedIdentityID is set at most once.
	ResolvedIdentityID *string          `json:"customer_id"`
	Cameras            []string         `json:"cameras"`
	Positions          []PositionSample `json:"positions"`
}
