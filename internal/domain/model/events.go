package model

import (
	"encoding/json"
	"time"
)

// IdentifiedCustomerEvent is published once per session when a candidate's
// confidence first exceeds the threshold.
type IdentifiedCustomerEvent struct {
	CustomerID string
	Confidence float64
	CameraID   string
	Timestamp  time.Time
}

type identifiedWire struct {
	CustomerID string  `json:"customer_id"`
	Confidence float64 `json:"confidence"`
	CameraID   string  `json:"camera_id"`
	Timestamp  string  `json:"timestamp"`
}

func (e IdentifiedCustomerEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(identifiedWire{
		CustomerID: e.CustomerID,
		Confidence: e.Confidence,
		CameraID:   e.CameraID,
		Timestamp:  FormatTimestamp(e.Timestamp),
	})
}

func (e *IdentifiedCustomerEvent) UnmarshalJSON(data []byte) error {
	var w identifiedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	*e = IdentifiedCustomerEvent{
		CustomerID: w.CustomerID,
		Confidence: w.Confidence,
		CameraID:   w.CameraID,
		Timestamp:  ts,
	}
	return nil
}

// TrackedObject is one person's state inside a tracking update.
type TrackedObject struct {
	PersonID   string    `json:"person_id"`
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Position   Position  `json:"position"`
	Confidence float64   `json:"confidence"`
	CustomerID *string   `json:"customer_id"`
}

// TrackingUpdate is pushed to live subscribers after every processed sighting.
type TrackingUpdate struct {
	CameraID  string          `json:"camera_id"`
	Timestamp time.Time       `json:"timestamp"`
	Objects   []TrackedObject `json:"objects"`
}

// Validate reports whether the update can be applied to person tracks.
func (u TrackingUpdate) Validate() error {
	for _, o := range u.Objects {
		if o.PersonID == "" || o.CameraID == "" || o.Timestamp.IsZero() {
			return ErrMalformedUpdate
		}
	}
	return nil
}

// Envelope wraps a tracking update for delivery over a subscription.
type Envelope struct {
	Type      string         `json:"type"`
	Data      TrackingUpdate `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// MessageTypeTrackingUpdate is the envelope type of tracking updates.
const MessageTypeTrackingUpdate = "tracking_update"

// NewEnvelope stamps u for delivery at now.
func NewEnvelope(u TrackingUpdate, now time.Time) Envelope {
	return Envelope{Type: MessageTypeTrackingUpdate, Data: u, Timestamp: now.UTC()}
}
