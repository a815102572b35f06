package model

import (
	"strconv"
	"strings"
	"time"
)

// Session ids are embedded in store keys whose segments are separated by ':',
// so the camera part never carries a raw colon.
var cameraEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// SessionID derives the session key for a sighting: the camera id joined with
// the index of the fixed window the event timestamp falls into. Colons and
// percent signs in the camera id are percent-encoded.
func SessionID(cameraID string, ts time.Time, window time.Duration) string {
	w := int64(window / time.Second)
	if w <= 0 {
		w = 1
	}
	sec := ts.Unix()
	bucket := sec / w
	if sec%w != 0 && sec < 0 {
		bucket--
	}
	return cameraEscaper.Replace(cameraID) + "_" + strconv.FormatInt(bucket, 10)
}

// SessionMeta is the metadata stored alongside a session's candidate scores.
type SessionMeta struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CandidateScore is one candidate's running maximum confidence within a session.
type CandidateScore struct {
	IdentityID string  `json:"identity_id"`
	Score      float64 `json:"score"`
}

// SessionConfidence is a read-only snapshot of a session.
type SessionConfidence struct {
	SessionID  string           `json:"session_id"`
	Meta       *SessionMeta     `json:"metadata,omitempty"`
	Candidates []CandidateScore `json:"candidates"`
}

// Identification is the result of a successful threshold check.
type Identification struct {
	IdentityID string
	Score      float64
	Meta       SessionMeta
}

// Candidate is one similarity search hit. Lower distance is more similar.
type Candidate struct {
	IdentityID string  `json:"identity_id"`
	Distance   float64 `json:"distance"`
}
