// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// localLayout is accepted for timestamps that carry no zone; they are read as UTC.
const localLayout = "2006-01-02T15:04:05.999999999"

// Position is a point in camera image coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SightingEvent is one detection of a face in one camera frame.
type SightingEvent struct {
	CameraID  string
	Timestamp time.Time
	// FaceCrop is an opaque reference handed to the embedding service.
	FaceCrop string
	Position Position
}

type sightingWire struct {
	CameraID    string    `json:"camera_id"`
	Timestamp   string    `json:"timestamp"`
	FaceCrop    string    `json:"face_crop,omitempty"`
	FaceCropB64 string    `json:"face_crop_b64,omitempty"`
	Position    *Position `json:"position,omitempty"`
}

// DecodeSighting parses and validates a wire payload.
// Every failure wraps ErrMalformedEvent.
func DecodeSighting(data []byte) (SightingEvent, error) {
	var ev SightingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		if errors.Is(err, ErrMalformedEvent) {
			return SightingEvent{}, err
		}
		return SightingEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return ev, nil
}

// UnmarshalJSON implements json.Unmarshaler with field-level validation.
func (e *SightingEvent) UnmarshalJSON(data []byte) error {
	var w sightingWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	crop := w.FaceCrop
	if crop == "" {
		crop = w.FaceCropB64
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: timestamp: %w", ErrMalformedEvent, err)
	}

	out := SightingEvent{
		CameraID:  w.CameraID,
		Timestamp: ts,
		FaceCrop:  crop,
	}
	if w.Position != nil {
		out.Position = *w.Position
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

// MarshalJSON renders the canonical wire form.
func (e SightingEvent) MarshalJSON() ([]byte, error) {
	pos := e.Position
	return json.Marshal(sightingWire{
		CameraID:  e.CameraID,
		Timestamp: FormatTimestamp(e.Timestamp),
		FaceCrop:  e.FaceCrop,
		Position:  &pos,
	})
}

// Validate checks the required fields.
func (e SightingEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.CameraID) == "":
		return fmt.Errorf("%w: camera_id is required", ErrMalformedEvent)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrMalformedEvent)
	case strings.TrimSpace(e.FaceCrop) == "":
		return fmt.Errorf("%w: face_crop is required", ErrMalformedEvent)
	}
	return nil
}

// ParseTimestamp reads an RFC3339 timestamp. A value without a zone is taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.ParseInLocation(localLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// FormatTimestamp renders t as RFC3339 in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
